package cache

// SQL schemas for the provider response cache tables. All tables share
// the cache_key / data / cached_at shape.

// GoogleBooksCacheSchema holds cached Google Books volume lookups.
const GoogleBooksCacheSchema = `
CREATE TABLE IF NOT EXISTS googlebooks_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_googlebooks_cached_at ON googlebooks_cache(cached_at);
`

// OpenLibraryCacheSchema holds cached OpenLibrary book lookups.
const OpenLibraryCacheSchema = `
CREATE TABLE IF NOT EXISTS openlibrary_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_openlibrary_cached_at ON openlibrary_cache(cached_at);
`

// AllCacheSchemas lists every table created on first open.
var AllCacheSchemas = []string{
	GoogleBooksCacheSchema,
	OpenLibraryCacheSchema,
}

// ValidCacheTableNames whitelists table names used in dynamic SQL.
var ValidCacheTableNames = map[string]bool{
	"googlebooks_cache": true,
	"openlibrary_cache": true,
}
