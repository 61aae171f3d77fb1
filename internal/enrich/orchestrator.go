// Package enrich runs the end-to-end metadata enrichment pipeline for
// one imported file: embedded extraction, catalog lookups, merge, cover
// download and commit. The pipeline never fails outright; the worst
// outcome is an item showing only its filename-derived title.
package enrich

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/covers"
	"github.com/lepinkainen/folio/internal/extract"
	"github.com/lepinkainen/folio/internal/library"
	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/provider"
)

// State names one step of the enrichment pipeline.
type State int

const (
	StateNotStarted State = iota
	StateExtractingEmbedded
	StateQueryingPrimary
	StateQueryingSecondary
	StateMergingFinal
	StateDownloadingCover
	StateCommitting
	StateDone
)

var stateNames = map[State]string{
	StateNotStarted:         "not_started",
	StateExtractingEmbedded: "extracting_embedded",
	StateQueryingPrimary:    "querying_primary",
	StateQueryingSecondary:  "querying_secondary",
	StateMergingFinal:       "merging_final",
	StateDownloadingCover:   "downloading_cover",
	StateCommitting:         "committing",
	StateDone:               "done",
}

func (s State) String() string {
	return stateNames[s]
}

// Options adjust a single orchestration run.
type Options struct {
	// ForceRefresh treats the result cache as a miss, re-running the
	// whole pipeline. The stale entry stays readable until the new
	// result lands.
	ForceRefresh bool
	// SkipCoverDownload leaves the cover as a URL without fetching the
	// bytes.
	SkipCoverDownload bool
}

// Orchestrator sequences one enrichment per imported item. Separate
// items enrich fully concurrently; the only shared state is the result
// cache and the item store, both safe for concurrent use.
type Orchestrator struct {
	primary    provider.Client
	secondary  provider.Client
	gatherer   *covers.Gatherer
	store      *library.Store
	results    *ResultCache
	httpClient *http.Client
}

// New creates an orchestrator over the given providers and item store.
// primary is consulted first; secondary only fills gaps.
func New(primary, secondary provider.Client, gatherer *covers.Gatherer, store *library.Store) *Orchestrator {
	return &Orchestrator{
		primary:    primary,
		secondary:  secondary,
		gatherer:   gatherer,
		store:      store,
		results:    NewResultCache(),
		httpClient: &http.Client{Timeout: config.HTTPTimeout()},
	}
}

// Key derives the cache/store identity for a file. Filename-based for
// now; a content hash would survive in-place file replacement.
func Key(path string) string {
	return filepath.Base(path)
}

// FetchMetadata runs the full pipeline for one file and returns the
// consolidated record. The only error it can return is the caller's
// context expiring; every provider or parse failure degrades to partial
// data instead. Safe to call repeatedly: completed results are memoized
// by file identity.
func (o *Orchestrator) FetchMetadata(ctx context.Context, path string, format extract.Format) (metadata.Record, error) {
	return o.fetch(ctx, path, format, Options{})
}

// FetchMetadataWithOptions is FetchMetadata with run options.
func (o *Orchestrator) FetchMetadataWithOptions(ctx context.Context, path string, format extract.Format, opts Options) (metadata.Record, error) {
	return o.fetch(ctx, path, format, opts)
}

// EnrichAsync runs the pipeline in the background, as the import path
// does: the caller is never blocked on network I/O and observes
// completion via the item's MetadataFetched flag.
func (o *Orchestrator) EnrichAsync(ctx context.Context, path string, format extract.Format) {
	go func() {
		if _, err := o.fetch(ctx, path, format, Options{}); err != nil {
			slog.Debug("Background enrichment abandoned", "path", path, "error", err)
		}
	}()
}

func (o *Orchestrator) fetch(ctx context.Context, path string, format extract.Format, opts Options) (metadata.Record, error) {
	key := Key(path)
	log := slog.With("run", uuid.NewString()[:8], "key", key)

	state := StateNotStarted

	// The cache check happens exactly once, at entry. A refresh is a
	// forced miss, not a cache clear: concurrent readers keep seeing
	// the stale entry until the new result is committed.
	if !opts.ForceRefresh {
		if rec, ok := o.results.Get(key); ok {
			log.Debug("Result cache hit, skipping pipeline")
			o.commit(log, key, rec)
			return rec, nil
		}
	}

	state = o.advance(log, state, StateExtractingEmbedded)
	embedded := extract.Extract(path, format)

	query := provider.Query{
		Title:  embedded.Title,
		Author: embedded.Author(),
		ISBN:   embedded.ISBN(),
	}

	state = o.advance(log, state, StateQueryingPrimary)
	merged := embedded
	if rec := o.lookup(ctx, log, o.primary, query); rec != nil {
		merged = metadata.Merge(embedded, *rec)
	}

	// The secondary provider is a gap filler: skip the call entirely
	// when the primary pass already produced a cover and description.
	if merged.CoverURL == "" || merged.Description == "" {
		state = o.advance(log, state, StateQueryingSecondary)
		secondaryQuery := provider.Query{
			Title:  merged.Title,
			Author: merged.Author(),
			ISBN:   merged.ISBN(),
		}
		if rec := o.lookup(ctx, log, o.secondary, secondaryQuery); rec != nil {
			merged = metadata.Merge(merged, *rec)
		}
	}

	state = o.advance(log, state, StateMergingFinal)

	if merged.CoverURL != "" && len(merged.CoverImage) == 0 && !opts.SkipCoverDownload && config.DownloadCovers {
		state = o.advance(log, state, StateDownloadingCover)
		if img, err := covers.FetchImage(ctx, o.httpClient, merged.CoverURL); err != nil {
			// The record commits without an image.
			log.Debug("Cover download failed", "url", merged.CoverURL, "error", err)
		} else {
			merged.CoverImage = img
		}
	}

	// A cancelled caller no longer wants this result; committing now
	// would race a deletion.
	if err := ctx.Err(); err != nil {
		log.Debug("Enrichment cancelled before commit", "error", err)
		return metadata.Record{}, err
	}

	state = o.advance(log, state, StateCommitting)
	o.commit(log, key, merged)
	o.results.Put(key, merged)

	o.advance(log, state, StateDone)
	log.Info("Enrichment complete",
		"title", merged.Title,
		"isbn", merged.ISBN(),
		"has_cover", len(merged.CoverImage) > 0 || merged.CoverURL != "")

	return merged, nil
}

// lookup runs one provider search, flattening every failure mode to "no
// result". Provider trouble is never fatal to the pipeline.
func (o *Orchestrator) lookup(ctx context.Context, log *slog.Logger, client provider.Client, query provider.Query) *metadata.Record {
	if client == nil || query.Empty() {
		return nil
	}

	rec, err := client.Search(ctx, query)
	if err != nil {
		log.Debug("Provider lookup came up empty", "provider", client.Name(), "error", err)
		return nil
	}
	return rec
}

func (o *Orchestrator) commit(log *slog.Logger, key string, rec metadata.Record) {
	if o.store == nil {
		return
	}
	if !o.store.Commit(key, rec) {
		log.Debug("Item gone before commit, dropping result")
	}
}

func (o *Orchestrator) advance(log *slog.Logger, from, to State) State {
	log.Debug("Pipeline state", "from", from.String(), "to", to.String())
	return to
}

// FetchCoverOptions gathers selectable cover candidates for the given
// search terms. Only candidates with a fetched, decodable thumbnail are
// returned.
func (o *Orchestrator) FetchCoverOptions(ctx context.Context, title, author, isbn string) []covers.Candidate {
	if o.gatherer == nil {
		return nil
	}
	return o.gatherer.Gather(ctx, provider.Query{Title: title, Author: author, ISBN: isbn})
}

// DownloadFullCover fetches the full resolution image for a candidate.
func (o *Orchestrator) DownloadFullCover(ctx context.Context, cand covers.Candidate) ([]byte, error) {
	if o.gatherer == nil {
		return covers.FetchImage(ctx, o.httpClient, cand.FullSizeURL)
	}
	return o.gatherer.DownloadFull(ctx, cand)
}
