// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFixture builds a Store plus an expire hook that advances TTL clocks.
type storeFixture struct {
	store  Store
	expire func(t *testing.T, d time.Duration)
}

func fixtures(t *testing.T) map[string]func(t *testing.T) *storeFixture {
	t.Helper()
	return map[string]func(t *testing.T) *storeFixture{
		"memory": func(_ *testing.T) *storeFixture {
			return &storeFixture{
				store: NewMemoryStore(),
				// The memory store uses the real clock; short TTLs plus a
				// sleep keep these tests fast without a fake clock.
				expire: func(_ *testing.T, d time.Duration) { time.Sleep(d + 20*time.Millisecond) },
			}
		},
		"redis": func(t *testing.T) *storeFixture {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return &storeFixture{
				store:  NewRedisStoreWithClient(client),
				expire: func(_ *testing.T, d time.Duration) { mr.FastForward(d + time.Millisecond) },
			}
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, setup := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fx := setup(t)
			s := fx.store

			t.Run("put get delete", func(t *testing.T) {
				require.NoError(t, s.Put(ctx, "oauth:client:a", []byte(`{"v":1}`), 0))
				got, err := s.Get(ctx, "oauth:client:a")
				require.NoError(t, err)
				assert.Equal(t, []byte(`{"v":1}`), got)

				require.NoError(t, s.Delete(ctx, "oauth:client:a"))
				_, err = s.Get(ctx, "oauth:client:a")
				assert.ErrorIs(t, err, ErrNotFound)

				// Deleting a missing key is not an error.
				assert.NoError(t, s.Delete(ctx, "oauth:client:a"))
			})

			t.Run("put if absent", func(t *testing.T) {
				created, err := s.PutIfAbsent(ctx, "oauth:state:s1", []byte("x"), time.Minute)
				require.NoError(t, err)
				assert.True(t, created)

				created, err = s.PutIfAbsent(ctx, "oauth:state:s1", []byte("y"), time.Minute)
				require.NoError(t, err)
				assert.False(t, created)

				got, err := s.Get(ctx, "oauth:state:s1")
				require.NoError(t, err)
				assert.Equal(t, []byte("x"), got)
			})

			t.Run("take is one-shot", func(t *testing.T) {
				require.NoError(t, s.Put(ctx, "oauth:code:c1", []byte("payload"), time.Minute))

				got, err := s.Take(ctx, "oauth:code:c1")
				require.NoError(t, err)
				assert.Equal(t, []byte("payload"), got)

				_, err = s.Take(ctx, "oauth:code:c1")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = s.Get(ctx, "oauth:code:c1")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ttl expiry", func(t *testing.T) {
				require.NoError(t, s.Put(ctx, "oauth:code:ttl", []byte("v"), 50*time.Millisecond))
				fx.expire(t, 50*time.Millisecond)

				_, err := s.Get(ctx, "oauth:code:ttl")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = s.Take(ctx, "oauth:code:ttl")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("expired key can be recreated", func(t *testing.T) {
				require.NoError(t, s.Put(ctx, "oauth:state:recreate", []byte("old"), 50*time.Millisecond))
				fx.expire(t, 50*time.Millisecond)

				created, err := s.PutIfAbsent(ctx, "oauth:state:recreate", []byte("new"), time.Minute)
				require.NoError(t, err)
				assert.True(t, created)
			})

			t.Run("sets", func(t *testing.T) {
				key := "oauth:user_tokens:42"
				require.NoError(t, s.SAdd(ctx, key, "jti-1"))
				require.NoError(t, s.SAdd(ctx, key, "jti-2"))
				require.NoError(t, s.SAdd(ctx, key, "jti-2"))

				members, err := s.SMembers(ctx, key)
				require.NoError(t, err)
				assert.ElementsMatch(t, []string{"jti-1", "jti-2"}, members)

				require.NoError(t, s.SRem(ctx, key, "jti-1"))
				members, err = s.SMembers(ctx, key)
				require.NoError(t, err)
				assert.ElementsMatch(t, []string{"jti-2"}, members)

				// Missing set reads as empty.
				members, err = s.SMembers(ctx, "oauth:user_tokens:missing")
				require.NoError(t, err)
				assert.Empty(t, members)
			})

			t.Run("ping", func(t *testing.T) {
				assert.NoError(t, s.Ping(ctx))
			})
		})
	}
}

// TestTakeConcurrent exercises the invariant behind one-time code
// redemption: many concurrent takers, exactly one winner.
func TestTakeConcurrent(t *testing.T) {
	for name, setup := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := setup(t).store
			require.NoError(t, s.Put(ctx, "oauth:code:race", []byte("once"), time.Minute))

			const takers = 32
			var wg sync.WaitGroup
			wins := make(chan struct{}, takers)
			for range takers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.Take(ctx, "oauth:code:race"); err == nil {
						wins <- struct{}{}
					}
				}()
			}
			wg.Wait()
			close(wins)
			assert.Len(t, wins, 1)
		})
	}
}

func TestRedisUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStoreWithClient(client)

	mr.Close()

	ctx := context.Background()
	_, err := s.Get(ctx, "oauth:client:x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v"), 0), ErrUnavailable)
	_, err = s.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
}

func TestNewFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem, err := New(ctx, MemoryStoreURL)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	mr := miniredis.RunT(t)
	rs, err := New(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, rs)
	require.NoError(t, rs.Close())

	_, err = New(ctx, "postgres://nope")
	assert.Error(t, err)
}

func TestKeySchema(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "oauth:client:abc", ClientKey("abc"))
	assert.Equal(t, "oauth:state:s", StateKey("s"))
	assert.Equal(t, "oauth:code:c", CodeKey("c"))
	assert.Equal(t, "oauth:token:j", TokenKey("j"))
	assert.Equal(t, "oauth:refresh:h", RefreshKey("h"))
	assert.Equal(t, "oauth:user_tokens:u", UserTokensKey("u"))
	assert.Equal(t, "oauth:client_tokens:c", ClientTokensKey("c"))
}
