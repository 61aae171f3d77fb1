package enrich

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/lepinkainen/folio/internal/metadata"
)

// ResultCache memoizes completed enrichment results by file identity for
// the life of the process. Entries never expire: cardinality equals the
// number of imported items, not the number of requests, so there is
// nothing to evict. Concurrent readers are safe; a racing put for the
// same key is last-write-wins.
type ResultCache struct {
	c *gocache.Cache
}

// NewResultCache creates an empty result cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		c: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get returns the memoized record for key.
func (rc *ResultCache) Get(key string) (metadata.Record, bool) {
	v, ok := rc.c.Get(key)
	if !ok {
		return metadata.Record{}, false
	}
	rec, ok := v.(metadata.Record)
	return rec, ok
}

// Put stores a completed record for key.
func (rc *ResultCache) Put(key string, rec metadata.Record) {
	rc.c.Set(key, rec, gocache.NoExpiration)
}
