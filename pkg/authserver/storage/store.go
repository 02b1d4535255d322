// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the state store for the OAuth authorization
// server: a typed interface over a TTL-capable key/value store, the
// namespaced key schema, and Redis plus in-memory backends.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the key does not exist (or has expired).
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the backing store is unreachable. The HTTP
	// adapter translates this to 503 with Retry-After.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the typed interface over a TTL-capable key/value store. All
// persistent state of the authorization server lives behind it; handlers
// never cache its contents in-process.
type Store interface {
	// Put writes value under key unconditionally. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent atomically creates key. It returns false if the key
	// already exists. Used for nonce-style entries (flow state, codes).
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the value under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Take atomically reads and deletes key. Under concurrency exactly one
	// caller receives the value; all others get ErrNotFound. Required for
	// one-time redemption of authorization codes and refresh tokens.
	Take(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SAdd adds member to the set under key.
	SAdd(ctx context.Context, key, member string) error

	// SRem removes member from the set under key.
	SRem(ctx context.Context, key, member string) error

	// SMembers returns all members of the set under key. A missing set is
	// an empty set, not an error.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Ping checks store connectivity (health checks).
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
