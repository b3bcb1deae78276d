package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Options selects and configures a backend
type Options struct {
	Backend    Backend
	Path       string
	SQLitePath string
	Redis      RedisOptions
}

// New builds the configured store. A redis backend that cannot be reached
// falls back to the file store so the client keeps working offline.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		st, err := NewRedisStore(ctx, opts.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", opts.Redis.Addr).Msg("Redis connection failed, falling back to file store")
			return NewFileStore(opts.Path)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", opts.Backend)
	}
}
