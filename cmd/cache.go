package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lepinkainen/folio/internal/cache"
)

// CacheCmd groups cache administration subcommands.
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Delete cached provider responses"`
	Stats CacheStatsCmd `cmd:"" help:"Show cache entry counts"`
}

// CacheClearCmd empties one or all provider cache tables.
type CacheClearCmd struct {
	Table string `help:"Cache table to clear (googlebooks_cache or openlibrary_cache); all when omitted"`
}

// Run executes the cache clear command.
func (c *CacheClearCmd) Run() error {
	db, err := cache.Global()
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	tables := []string{"googlebooks_cache", "openlibrary_cache"}
	if c.Table != "" {
		tables = []string{c.Table}
	}

	for _, table := range tables {
		deleted, err := db.ClearAll(table)
		if err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		slog.Info("Cache cleared", "table", table, "entries_deleted", deleted)
	}
	return nil
}

// CacheStatsCmd prints per-table entry counts.
type CacheStatsCmd struct{}

// Run executes the cache stats command.
func (c *CacheStatsCmd) Run() error {
	db, err := cache.Global()
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	for _, table := range []string{"googlebooks_cache", "openlibrary_cache"} {
		n, err := db.Count(table)
		if err != nil {
			return fmt.Errorf("counting %s: %w", table, err)
		}
		fmt.Printf("%s: %d entries\n", table, n)
	}
	return nil
}
