// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"maps"
	"sync"
	"time"
)

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *timedEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implements Store with in-process maps. It is thread-safe and
// suitable for tests and single-instance development deployments
// (STORE_URL=memory://). TTL expiry is enforced lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*timedEntry
	sets    map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*timedEntry),
		sets:    make(map[string]map[string]struct{}),
	}
}

// Put writes value under key unconditionally.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = newEntry(value, ttl)
	return nil
}

// PutIfAbsent atomically creates key; returns false if it already exists.
func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	s.entries[key] = newEntry(value, ttl)
	return true, nil
}

// Get returns the value under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	return cloneBytes(e.value), nil
}

// Take atomically reads and deletes key. The single mutex makes the
// read-and-delete indivisible, so exactly one concurrent caller wins.
func (s *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, key)
	if e.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return cloneBytes(e.value), nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// SAdd adds member to the set under key.
func (s *MemoryStore) SAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// SRem removes member from the set under key.
func (s *MemoryStore) SRem(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

// SMembers returns all members of the set under key.
func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(set))
	for m := range maps.Keys(set) {
		members = append(members, m)
	}
	return members, nil
}

// Ping always succeeds for the in-memory store.
func (*MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (*MemoryStore) Close() error { return nil }

func newEntry(value []byte, ttl time.Duration) *timedEntry {
	e := &timedEntry{value: cloneBytes(value)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}

// cloneBytes copies value so callers cannot mutate stored data.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Compile-time interface compliance check.
var _ Store = (*MemoryStore)(nil)
