// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys provides signing key management for the OAuth authorization
// server: the RSA key pair used for RS256 JWT signing, JWKS publication,
// and the symmetric secret used to HMAC opaque tokens before storage.
package keys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stackmesh/authgate/pkg/logger"
)

// KeyBits is the RSA key size generated on first start.
// 2048 bits is the minimum per NIST SP 800-57 recommendations.
const KeyBits = 2048

// SigningAlgorithm is the JWS algorithm for all issued tokens.
const SigningAlgorithm = "RS256"

// MinHMACSecretLength is the minimum length of the symmetric secret in
// bytes, per OWASP guidance for HMAC-SHA256.
const MinHMACSecretLength = 32

// ErrUnknownKeyID is returned when a token's kid matches neither the
// current nor the previous signing key.
var ErrUnknownKeyID = errors.New("unknown key id")

// signingKey pairs an RSA private key with its derived key ID.
type signingKey struct {
	keyID string
	key   *rsa.PrivateKey
}

// Manager holds the signing key pair and the HMAC secret. It is read-only
// after construction and safe to share across request handlers without
// locks.
type Manager struct {
	current *signingKey
	// previous is kept for a rotation grace window so tokens signed before
	// a key swap remain verifiable. May be nil.
	previous   *signingKey
	hmacSecret []byte
}

// LoadOrGenerate builds a Manager from the PEM-encoded RSA private key at
// keyPath. If the file does not exist, a new key is generated and written
// with 0600 permissions. If a sibling file "<keyPath>.prev" exists, it is
// loaded as the previous key for rotation grace.
func LoadOrGenerate(keyPath string, hmacSecret []byte) (*Manager, error) {
	if keyPath == "" {
		return nil, errors.New("signing key path is required")
	}
	if len(hmacSecret) < MinHMACSecretLength {
		return nil, fmt.Errorf("HMAC secret must be at least %d bytes", MinHMACSecretLength)
	}

	current, err := loadKey(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		current, err = generateKey(keyPath)
	}
	if err != nil {
		return nil, err
	}

	m := &Manager{current: current, hmacSecret: hmacSecret}

	prev, err := loadKey(keyPath + ".prev")
	switch {
	case err == nil:
		m.previous = prev
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to load previous signing key: %w", err)
	}

	logger.Infow("signing key ready",
		"key_id", current.keyID,
		"has_previous", m.previous != nil,
	)
	return m, nil
}

// KeyID returns the kid of the current signing key.
func (m *Manager) KeyID() string {
	return m.current.keyID
}

// Sign serializes claims into a compact RS256 JWS signed with the current
// key. The kid header matches the key published in the JWKS.
func (m *Manager) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.current.keyID

	signed, err := token.SignedString(m.current.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a compact JWT, selects the key by kid, and checks the
// signature plus exp/nbf. It returns the claims on success.
func (m *Manager) Verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// keyFunc selects the verification key by the token's kid header.
func (m *Manager) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	switch {
	case kid == m.current.keyID:
		return &m.current.key.PublicKey, nil
	case m.previous != nil && kid == m.previous.keyID:
		return &m.previous.key.PublicKey, nil
	default:
		return nil, ErrUnknownKeyID
	}
}

// JWKS returns the public key set for the /jwks endpoint. It includes the
// previous key during rotation grace so in-flight tokens stay verifiable.
func (m *Manager) JWKS() jose.JSONWebKeySet {
	keySet := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{publicJWK(m.current)}}
	if m.previous != nil {
		keySet.Keys = append(keySet.Keys, publicJWK(m.previous))
	}
	return keySet
}

// HashToken computes the keyed hash under which opaque tokens (refresh
// tokens, registration access tokens) are stored. Plaintext token values
// never reach the state store.
func (m *Manager) HashToken(token string) string {
	mac := hmac.New(sha256.New, m.hmacSecret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// CompareTokenHash reports whether token hashes to storedHash. The
// comparison is constant time.
func (m *Manager) CompareTokenHash(token, storedHash string) bool {
	return hmac.Equal([]byte(m.HashToken(token)), []byte(storedHash))
}

func publicJWK(k *signingKey) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.key.PublicKey,
		KeyID:     k.keyID,
		Algorithm: SigningAlgorithm,
		Use:       "sig",
	}
}

func loadKey(path string) (*signingKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	key, err := parseRSAPrivateKey(block)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key %s: %w", path, err)
	}

	return &signingKey{keyID: deriveKeyID(key), key: key}, nil
}

// parseRSAPrivateKey accepts PKCS1 and PKCS8 encodings.
func parseRSAPrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}

func generateKey(path string) (*signingKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signing key: %w", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, pemData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}

	sk := &signingKey{keyID: deriveKeyID(key), key: key}
	logger.Infow("generated new RSA signing key",
		"path", path,
		"key_id", sk.keyID,
		"bits", KeyBits,
	)
	return sk, nil
}

// deriveKeyID derives a stable 8-byte identifier from the public key, so
// restarts reproduce the same kid without extra persisted state.
func deriveKeyID(key *rsa.PrivateKey) string {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		// MarshalPKIXPublicKey cannot fail for a valid RSA public key.
		panic(fmt.Sprintf("failed to marshal public key: %v", err))
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}
