// Package cache keeps rendered HTML keyed by a hash of the Markdown it came from.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"scrollpress/common"
)

// Store is a render cache backend. Get misses on any backend error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) error
}

// Key generates an xxHash key for the given source
func Key(source string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(source))
}

// New picks the backend named by cfg.Driver.
func New(cfg common.CacheConfig) (Store, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return NewFileStore(cfg.Dir, ttl)
	case "redis":
		return NewRedisStore(cfg.Redis, ttl), nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// Noop never hits.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool) { return "", false }

func (Noop) Set(context.Context, string, string) error { return nil }
