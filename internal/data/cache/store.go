// Package cache is a small on-disk JSON cache shared between runs and
// processes.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/data/filelock"
	"upgradeimpact/internal/shared/observability"
)

type Kind string

const (
	KindPyPI      Kind = "pypi"
	KindChangelog Kind = "changelog"
	KindAPIDiff   Kind = "api_diff"
)

var Kinds = []Kind{KindPyPI, KindChangelog, KindAPIDiff}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

const (
	lockName           = ".lock"
	defaultLockTimeout = 5 * time.Second
)

type entry struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	CachedAt time.Time       `json:"cached_at"`
}

// Store keeps one JSON file per key under dir/<kind>/. A nil or disabled
// Store misses every lookup and drops every write.
type Store struct {
	dir         string
	enabled     bool
	lockTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewStore(dir string, enabled bool) *Store {
	return &Store{
		dir:         dir,
		enabled:     enabled && dir != "",
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

func (s *Store) Enabled() bool { return s != nil && s.enabled }

func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

func (s *Store) path(kind Kind, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, string(kind), hex.EncodeToString(sum[:])+".json")
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, lockName)
}

// Get decodes the value for key into dst. ttl <= 0 never expires. Expired,
// unreadable or mismatched entries are misses.
func (s *Store) Get(kind Kind, key string, ttl time.Duration, dst any) bool {
	if !s.Enabled() {
		return false
	}
	hit := s.get(kind, key, ttl, dst)
	result := "miss"
	if hit {
		result = "hit"
	}
	observability.CacheLookupsTotal.WithLabelValues(string(kind), result).Inc()
	return hit
}

func (s *Store) get(kind Kind, key string, ttl time.Duration, dst any) bool {
	data, err := os.ReadFile(s.path(kind, key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("cache read failed", "kind", kind, "error", err)
		}
		return false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key {
		return false
	}
	if ttl > 0 && s.now().Sub(e.CachedAt) > ttl {
		return false
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		s.logger.Debug("cache value decode failed", "kind", kind, "error", err)
		return false
	}
	return true
}

// Set stores value under key, replacing any existing entry atomically.
func (s *Store) Set(kind Kind, key string, value any) error {
	if !s.Enabled() {
		return nil
	}
	if !kind.Valid() {
		return errors.Newf(errors.CodeValidationError, "unknown cache kind %q", kind)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	data, err := json.Marshal(entry{Key: key, Value: raw, CachedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	target := s.path(kind, key)
	return filelock.With(s.lockPath(), s.lockTimeout, func() error {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
		if err != nil {
			return fmt.Errorf("creating cache temp file: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("writing cache entry: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("closing cache entry: %w", err)
		}
		if err := os.Rename(tmp.Name(), target); err != nil {
			return fmt.Errorf("replacing cache entry: %w", err)
		}
		return nil
	})
}

// Clear removes every entry of kind, or of all kinds when kind is empty.
func (s *Store) Clear(kind Kind) error {
	if !s.Enabled() {
		return nil
	}
	kinds := Kinds
	if kind != "" {
		if !kind.Valid() {
			return errors.Newf(errors.CodeValidationError, "unknown cache kind %q", kind)
		}
		kinds = []Kind{kind}
	}
	return filelock.With(s.lockPath(), s.lockTimeout, func() error {
		for _, k := range kinds {
			if err := os.RemoveAll(filepath.Join(s.dir, string(k))); err != nil {
				return fmt.Errorf("clearing %s cache: %w", k, err)
			}
		}
		return nil
	})
}
