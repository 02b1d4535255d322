// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations. Reads and writes are bounded so a
// wedged store surfaces as ErrUnavailable within the 2s budget rather than
// stalling request handlers.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second
)

// RedisStore implements Store on a Redis backend. Take maps to GETDEL and
// PutIfAbsent to SET NX, so the one-success-under-concurrency guarantees
// hold across replicas.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis using a redis:// connection string.
func NewRedisStore(ctx context.Context, storeURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(storeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL: %w", err)
	}

	opts.DialTimeout = DefaultDialTimeout
	opts.ReadTimeout = DefaultReadTimeout
	opts.WriteTimeout = DefaultWriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Put writes value under key unconditionally.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapRedisErr("set", err)
	}
	return nil
}

// PutIfAbsent atomically creates key via SET NX.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapRedisErr("setnx", err)
	}
	return created, nil
}

// Get returns the value under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, wrapRedisErr("get", err)
	}
	return data, nil
}

// Take atomically reads and deletes key via GETDEL. Redis executes the
// command atomically, so exactly one concurrent caller wins.
func (s *RedisStore) Take(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, wrapRedisErr("getdel", err)
	}
	return data, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return wrapRedisErr("del", err)
	}
	return nil
}

// SAdd adds member to the set under key.
func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return wrapRedisErr("sadd", err)
	}
	return nil
}

// SRem removes member from the set under key.
func (s *RedisStore) SRem(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return wrapRedisErr("srem", err)
	}
	return nil
}

// SMembers returns all members of the set under key.
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrapRedisErr("smembers", err)
	}
	return members, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapRedisErr("ping", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// wrapRedisErr classifies any non-Nil Redis failure as ErrUnavailable:
// network errors, timeouts, and failovers all mean the source of truth
// cannot be consulted right now.
func wrapRedisErr(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", ErrUnavailable, op, err)
}

// Compile-time interface compliance check.
var _ Store = (*RedisStore)(nil)
