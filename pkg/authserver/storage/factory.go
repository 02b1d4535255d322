// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackmesh/authgate/pkg/logger"
)

// MemoryStoreURL selects the in-memory backend.
const MemoryStoreURL = "memory://"

// New creates a Store from a connection string: redis:// (or rediss://) for
// the Redis backend, memory:// for the in-memory backend.
func New(ctx context.Context, storeURL string) (Store, error) {
	switch {
	case storeURL == MemoryStoreURL:
		logger.Warn("using in-memory state store - tokens will not survive restarts")
		return NewMemoryStore(), nil
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		return NewRedisStore(ctx, storeURL)
	default:
		return nil, fmt.Errorf("unsupported store URL scheme in %q", storeURL)
	}
}
