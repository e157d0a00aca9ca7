// ABOUTME: Durable key-value interface used to persist the conversation store
// ABOUTME: Backends: in-memory, SQLite (modernc or mattn driver) and Redis

package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kv store closed")

// Store is a string key-value store. Get reports a missing key with ok=false
// and a nil error; errors are reserved for an unavailable backend.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// SQLite
	Path   string
	Driver string // "sqlite" (modernc, default) or "sqlite3" (mattn, cgo)

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Prefix namespaces keys for shared backends (Redis).
	Prefix string
}

// Open creates the store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, "":
		return NewSQLiteStore(opts.Path, opts.Driver)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
)
