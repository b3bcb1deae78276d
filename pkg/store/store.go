package store

import (
	"context"
	"errors"
	"time"

	"github.com/harun/hwdesk/internal/observability"
)

// Keys of the persisted session entry.
const (
	KeyToken    = "token"
	KeyUserInfo = "userInfo"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ErrCorrupt is wrapped by backends whose stored data cannot be decoded.
var ErrCorrupt = errors.New("store data is corrupt")

// Store is a durable string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

func observe(backend Backend, op string, start time.Time, err error) {
	observability.RecordStoreOperation(string(backend), op, time.Since(start), err == nil)
}
