package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore persists all keys as a single JSON object on disk. Writes go to a
// temporary file that is renamed over the original, so readers never observe
// a partially written file.
type FileStore struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a file-backed store at path
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".hwdesk", "session.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	log.Debug().Str("path", path).Msg("File store initialized")
	return &FileStore{path: path}, nil
}

// Path returns the location of the backing file
func (f *FileStore) Path() string {
	return f.path
}

// Get returns the value stored under key
func (f *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		observe(BackendFile, "get", start, ErrClosed)
		return "", false, ErrClosed
	}

	values, err := f.load()
	observe(BackendFile, "get", start, err)
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Set stores value under key
func (f *FileStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.update(func(values map[string]string) {
		values[key] = value
	})
	observe(BackendFile, "set", start, err)
	return err
}

// Delete removes the given keys. The backing file is removed once empty.
func (f *FileStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.update(func(values map[string]string) {
		for _, key := range keys {
			delete(values, key)
		}
	})
	observe(BackendFile, "delete", start, err)
	return err
}

// Close marks the store closed
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileStore) update(mutate func(map[string]string)) error {
	if f.closed {
		return ErrClosed
	}

	values, err := f.load()
	if err != nil {
		// An unreadable file is replaced rather than blocking every write.
		log.Warn().Err(err).Str("path", f.path).Msg("Discarding unreadable store file")
		values = make(map[string]string)
	}

	mutate(values)

	if len(values) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove store file: %w", err)
		}
		return nil
	}
	return f.save(values)
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]string), nil
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode store file: %w: %v", ErrCorrupt, err)
	}
	return values, nil
}

func (f *FileStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
