// Package provider defines the contract shared by the external catalog
// lookup clients. A provider failure is never fatal to enrichment: the
// orchestrator treats every error from a provider as "nothing found".
package provider

import (
	"context"
	"errors"

	"github.com/lepinkainen/folio/internal/metadata"
)

var (
	// ErrNotFound means the catalog had no match for the query. Timeouts,
	// non-2xx responses and unparseable bodies are reported as wrapped
	// errors but handled identically by callers.
	ErrNotFound = errors.New("no matching catalog entry")

	// ErrNoQuery means neither ISBN, title nor author was available, so
	// no request was issued at all.
	ErrNoQuery = errors.New("no usable query terms")
)

// Query carries the search seed built from embedded metadata. When ISBN
// is set it is used alone; otherwise whatever subset of title/author is
// non-empty forms the query.
type Query struct {
	Title  string
	Author string
	ISBN   string
}

// Empty reports whether the query has no usable terms.
func (q Query) Empty() bool {
	return q.ISBN == "" && q.Title == "" && q.Author == ""
}

// Client is a bibliographic catalog lookup service.
type Client interface {
	// Name identifies the provider in logs and provenance labels.
	Name() string

	// Search returns the single best matching record, or ErrNotFound.
	Search(ctx context.Context, query Query) (*metadata.Record, error)
}

// CoverHit is one candidate cover image from a provider, drawn from a
// specific catalog edition rather than the single best match.
type CoverHit struct {
	ThumbnailURL string
	FullSizeURL  string
	Year         string
	Publisher    string
}

// CoverSource is a provider that can surface multiple candidate covers
// from distinct catalog entries for the same work.
type CoverSource interface {
	Client

	// SearchCovers returns up to limit candidate covers.
	SearchCovers(ctx context.Context, query Query, limit int) ([]CoverHit, error)
}
