// Package cache persists provider API responses in a local SQLite
// database so repeat lookups for the same book skip the network across
// runs. "Not found" answers are cached too, with a shorter TTL.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

const (
	// DefaultCacheTTL is the time-to-live for successful lookups.
	DefaultCacheTTL = 720 * time.Hour
	// NegativeCacheTTL is the shorter TTL for "not found" responses.
	NegativeCacheTTL = 168 * time.Hour
)

// FetchFunc fetches a value from an external source on cache miss.
type FetchFunc[T any] func() (T, error)

// DB wraps the SQLite connection behind the response cache.
type DB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

var (
	globalDB     *DB
	globalDBOnce sync.Once
)

// Global returns the singleton cache database, opening it on first use
// at the configured path.
func Global() (*DB, error) {
	var initErr error
	globalDBOnce.Do(func() {
		path := viper.GetString("cache.dbfile")
		if path == "" {
			path = "./cache.db"
		}
		globalDB, initErr = Open(path)
	})
	if initErr != nil {
		return nil, initErr
	}
	return globalDB, nil
}

// ResetGlobal closes and forgets the singleton so the next Global call
// reopens it. Primarily for tests.
func ResetGlobal() error {
	if globalDB != nil {
		if err := globalDB.Close(); err != nil {
			return err
		}
	}
	globalDB = nil
	globalDBOnce = sync.Once{}
	return nil
}

// Open opens (and initializes) a cache database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("connecting to cache database: %w", err), closeErr)
	}

	c := &DB{db: db, path: path}
	for _, schema := range AllCacheSchemas {
		if _, err := db.Exec(schema); err != nil {
			closeErr := db.Close()
			return nil, errors.Join(fmt.Errorf("creating cache table: %w", err), closeErr)
		}
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *DB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func validateTableName(table string) error {
	if !ValidCacheTableNames[table] {
		return fmt.Errorf("invalid cache table name: %s", table)
	}
	return nil
}

// Get returns the cached value for key if present and younger than ttl.
func (c *DB) Get(table, key string, ttl time.Duration) (string, bool, error) {
	if err := validateTableName(table); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`SELECT data, cached_at FROM %s WHERE cache_key = ?`, table)

	var data string
	var cachedAt time.Time
	err := c.db.QueryRow(query, key).Scan(&data, &cachedAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying cache: %w", err)
	}

	if age := time.Now().UTC().Sub(cachedAt); age > ttl {
		slog.Debug("Cache entry expired", "table", table, "key", key, "age", age)
		return "", false, nil
	}

	return data, true, nil
}

// Set stores a value, replacing any existing entry for the key.
func (c *DB) Set(table, key, data string) error {
	if err := validateTableName(table); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (cache_key, data, cached_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, table)

	if _, err := c.db.Exec(query, key, data); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

// ClearAll removes every entry from the table and returns the count.
func (c *DB) ClearAll(table string) (int64, error) {
	if err := validateTableName(table); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	slog.Debug("Cache table cleared", "table", table, "rows_deleted", rows)
	return rows, nil
}

// Count returns the number of entries in the table.
func (c *DB) Count(table string) (int64, error) {
	if err := validateTableName(table); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	err := c.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// GetOrFetchWithTTL returns the cached value for key, or calls fetchFunc
// and caches the result. ttlSelector picks the TTL per fetched value so
// "not found" answers can expire sooner than real hits.
func GetOrFetchWithTTL[T any](table, key string, fetchFunc FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	var zero T

	db, err := Global()
	if err != nil {
		// A broken cache never blocks a lookup.
		slog.Warn("Cache unavailable, fetching directly", "error", err)
		data, fetchErr := fetchFunc()
		return data, false, fetchErr
	}

	defaultTTL := configuredTTL()

	cached, hit, err := db.Get(table, key, defaultTTL)
	if err == nil && hit {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Cache hit", "table", table, "key", key)
			return result, true, nil
		}
		slog.Warn("Unreadable cache entry, refetching", "table", table, "key", key, "error", err)
	}

	slog.Debug("Cache miss", "table", table, "key", key)
	data, err := fetchFunc()
	if err != nil {
		return zero, false, fmt.Errorf("fetching data: %w", err)
	}

	ttl := defaultTTL
	if ttlSelector != nil {
		ttl = ttlSelector(data)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to encode value for caching", "table", table, "key", key, "error", err)
		return data, false, nil
	}
	if err := db.Set(table, key, string(encoded)); err != nil {
		// Caching failure never fails the lookup.
		slog.Warn("Failed to store cache entry", "table", table, "key", key, "error", err)
	} else {
		slog.Debug("Cached response", "table", table, "key", key, "ttl", ttl)
	}

	return data, false, nil
}

// GetOrFetch is GetOrFetchWithTTL with the default TTL for everything.
func GetOrFetch[T any](table, key string, fetchFunc FetchFunc[T]) (T, bool, error) {
	return GetOrFetchWithTTL(table, key, fetchFunc, nil)
}

// SelectNegativeCacheTTL builds a TTL selector that caches "not found"
// results for NegativeCacheTTL and everything else for DefaultCacheTTL.
func SelectNegativeCacheTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeCacheTTL
		}
		return DefaultCacheTTL
	}
}

func configuredTTL() time.Duration {
	ttlStr := viper.GetString("cache.ttl")
	if ttlStr == "" {
		return DefaultCacheTTL
	}
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		slog.Warn("Invalid cache TTL, using default", "ttl", ttlStr, "error", err)
		return DefaultCacheTTL
	}
	return ttl
}
