// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stackmesh/authgate/pkg/authserver/keys"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/logger"
	"github.com/stackmesh/authgate/pkg/oauth"
)

// Credential sizes in bytes of randomness, before base64url encoding.
const (
	clientIDBytes     = 16
	clientSecretBytes = 32
	regTokenBytes     = 32
)

// Registry manages client registrations on top of the state store. Secrets
// are bcrypt-hashed and management tokens keyed-hashed before storage.
type Registry struct {
	store storage.Store
	keys  *keys.Manager

	// clientLifetime bounds how long a registration lives; 0 means
	// registrations never expire.
	clientLifetime time.Duration

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Registry with the given client lifetime policy.
func New(store storage.Store, km *keys.Manager, clientLifetime time.Duration) *Registry {
	return &Registry{
		store:          store,
		keys:           km,
		clientLifetime: clientLifetime,
		now:            time.Now,
	}
}

// Register validates the metadata, generates credentials, and persists the
// client. The returned Registration carries the plaintext secret and
// management token; they are never stored and cannot be retrieved again.
func (r *Registry) Register(ctx context.Context, m *Metadata) (*Registration, error) {
	if oerr := ValidateMetadata(m); oerr != nil {
		return nil, oerr
	}

	clientID, err := oauth.RandomToken(clientIDBytes)
	if err != nil {
		return nil, err
	}
	regToken, err := oauth.RandomToken(regTokenBytes)
	if err != nil {
		return nil, err
	}

	now := r.now().Unix()
	client := &Client{
		ClientID:              clientID,
		RegistrationTokenHash: r.keys.HashToken(regToken),
		Metadata:              *m,
		CreatedAt:             now,
	}
	if r.clientLifetime > 0 {
		client.ExpiresAt = now + int64(r.clientLifetime.Seconds())
	}

	var secret string
	if !client.IsPublic() {
		secret, err = oauth.RandomToken(clientSecretBytes)
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.SecretHash = hash
		client.SecretExpiresAt = client.ExpiresAt
	}

	if err := r.save(ctx, client); err != nil {
		return nil, err
	}

	logger.Infow("registered client",
		"client_id", client.ClientID,
		"client_name", m.ClientName,
		"auth_method", m.TokenEndpointAuthMethod,
		"public", client.IsPublic(),
	)
	return &Registration{
		Client:                  client,
		ClientSecret:            secret,
		RegistrationAccessToken: regToken,
	}, nil
}

// Get fetches a client by ID. Expired registrations are deleted on read and
// reported as storage.ErrNotFound.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	data, err := r.store.Get(ctx, storage.ClientKey(clientID))
	if err != nil {
		return nil, err
	}

	var client Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, fmt.Errorf("failed to decode client %s: %w", clientID, err)
	}

	if client.ExpiresAt != 0 && client.ExpiresAt <= r.now().Unix() {
		if err := r.store.Delete(ctx, storage.ClientKey(clientID)); err != nil {
			return nil, err
		}
		logger.Infow("removed expired client registration", "client_id", clientID)
		return nil, fmt.Errorf("%w: client %s expired", storage.ErrNotFound, clientID)
	}
	return &client, nil
}

// Update replaces the client's metadata per RFC 7592. Credentials and
// timestamps are preserved; only the metadata document changes.
func (r *Registry) Update(ctx context.Context, clientID string, m *Metadata) (*Client, error) {
	client, err := r.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if oerr := ValidateMetadata(m); oerr != nil {
		return nil, oerr
	}

	client.Metadata = *m
	if err := r.save(ctx, client); err != nil {
		return nil, err
	}
	logger.Infow("updated client registration", "client_id", clientID)
	return client, nil
}

// Delete removes the registration. Token revocation for the deleted client
// is the token service's job; callers chain the two.
func (r *Registry) Delete(ctx context.Context, clientID string) error {
	if _, err := r.Get(ctx, clientID); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, storage.ClientKey(clientID)); err != nil {
		return err
	}
	logger.Infow("deleted client registration", "client_id", clientID)
	return nil
}

// VerifyManagementToken reports whether token is the registration access
// token for this client. Constant time.
func (r *Registry) VerifyManagementToken(client *Client, token string) bool {
	return token != "" && r.keys.CompareTokenHash(token, client.RegistrationTokenHash)
}

// VerifySecret reports whether secret matches the client's stored secret
// hash and the secret has not expired. Always false for public clients.
func (r *Registry) VerifySecret(client *Client, secret string) bool {
	if client.IsPublic() || len(client.SecretHash) == 0 {
		return false
	}
	if client.SecretExpiresAt != 0 && client.SecretExpiresAt <= r.now().Unix() {
		return false
	}
	return bcrypt.CompareHashAndPassword(client.SecretHash, []byte(secret)) == nil
}

func (r *Registry) save(ctx context.Context, client *Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to encode client %s: %w", client.ClientID, err)
	}

	var ttl time.Duration
	if client.ExpiresAt != 0 {
		ttl = time.Until(time.Unix(client.ExpiresAt, 0))
	}
	return r.store.Put(ctx, storage.ClientKey(client.ClientID), data, ttl)
}
