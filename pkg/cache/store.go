// Package cache persists JSON snapshots (overview aggregates, list views) to
// disk so they survive restarts and can be read by another process.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const entryExt = ".json"

// ErrNotJSON is returned by Put when the value is not valid JSON.
var ErrNotJSON = errors.New("cache: value is not valid JSON")

// StoreConfig holds configuration for a cache Store.
type StoreConfig struct {
	// Dir is the directory path where entries are stored.
	Dir string

	// TTL is how long an entry stays readable after it was written.
	// A value of 0 means entries never expire.
	TTL time.Duration
}

// CacheStats holds runtime statistics for a cache Store.
type CacheStats struct {
	Hits   int64
	Misses int64
	Writes int64
}

// entry is the on-disk envelope of one value.
type entry struct {
	Key     string          `json:"key"`
	Written time.Time       `json:"written"`
	Data    json.RawMessage `json:"data"`
}

// Store is a disk-backed snapshot store. Each entry is one {hash}.json file
// holding the key, the write time and the value. Writes are atomic.
type Store struct {
	cfg StoreConfig

	mu     sync.Mutex
	hits   int64
	misses int64
	writes int64
}

// NewStore creates a Store, creating the directory with 0755 permissions if
// it does not exist.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache: directory is required")
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", cfg.Dir, err)
	}
	return &Store{cfg: cfg}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.cfg.Dir }

// Get returns the raw JSON stored under key and when it was written. It
// reports false if the key is missing, unreadable or expired.
func (s *Store) Get(key string) ([]byte, time.Time, bool) {
	e, err := s.read(s.path(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || e.Key != key || s.expired(e) {
		s.misses++
		return nil, time.Time{}, false
	}
	s.hits++
	return e.Data, e.Written, true
}

// Put stores data, which must be valid JSON, under key.
func (s *Store) Put(key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("%w: key %q", ErrNotJSON, key)
	}
	buf, err := json.Marshal(entry{Key: key, Written: time.Now(), Data: data})
	if err != nil {
		return fmt.Errorf("cache: marshal entry %q: %w", key, err)
	}
	if err := atomic.WriteFile(s.path(key), bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("cache: write %q: %w", key, err)
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// Keys returns the sorted keys of all unexpired entries.
func (s *Store) Keys() []string {
	matches, _ := filepath.Glob(filepath.Join(s.cfg.Dir, "*"+entryExt))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		e, err := s.read(m)
		if err != nil || s.expired(e) {
			continue
		}
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a copy of the runtime counters.
func (s *Store) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CacheStats{Hits: s.hits, Misses: s.misses, Writes: s.writes}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.cfg.Dir, hashKey(key)+entryExt)
}

func (s *Store) read(path string) (entry, error) {
	var e entry
	data, err := os.ReadFile(path)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("cache: corrupt entry %s: %w", strings.TrimSuffix(filepath.Base(path), entryExt), err)
	}
	return e, nil
}

func (s *Store) expired(e entry) bool {
	return s.cfg.TTL > 0 && time.Since(e.Written) > s.cfg.TTL
}
