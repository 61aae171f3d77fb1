// Package covers gathers candidate cover images from every provider,
// deduplicates them and prefetches thumbnails so the presenting layer
// only ever sees candidates that actually render.
package covers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/provider"
)

const (
	perSourceLimit    = 4
	thumbnailFetchers = 4
	maxImageBytes     = 8 << 20
	maxThumbnailWidth = 320
)

// Candidate is one selectable cover option tied to a specific catalog
// edition. A candidate is only surfaced once its thumbnail has been
// fetched and decoded; Thumbnail being non-empty is the validity
// invariant.
type Candidate struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Label        string `json:"label" yaml:"label"`
	ThumbnailURL string `json:"thumbnail_url" yaml:"thumbnail_url"`
	FullSizeURL  string `json:"full_size_url" yaml:"full_size_url"`
	Thumbnail    []byte `json:"-" yaml:"-"`
}

// Gatherer fans out cover searches across providers.
type Gatherer struct {
	sources    []provider.CoverSource
	httpClient *http.Client
	// openLibraryCoversURL backs the ISBN-direct candidate; it needs no
	// catalog query at all.
	openLibraryCoversURL string
}

// NewGatherer creates a gatherer over the given cover sources.
func NewGatherer(sources ...provider.CoverSource) *Gatherer {
	return &Gatherer{
		sources:              sources,
		httpClient:           &http.Client{Timeout: config.HTTPTimeout()},
		openLibraryCoversURL: "https://covers.openlibrary.org",
	}
}

// Gather returns validated cover candidates for the query, capped at the
// configured maximum. Candidates whose thumbnail cannot be fetched and
// decoded are dropped, never surfaced broken.
func (g *Gatherer) Gather(ctx context.Context, query provider.Query) []Candidate {
	if query.Empty() {
		return nil
	}

	var candidates []Candidate

	// An ISBN names one exact edition, so its CDN cover URL is a free
	// high-confidence candidate ahead of the search-derived ones.
	if isbn := metadata.NormalizeISBN(query.ISBN); isbn != "" {
		candidates = append(candidates, Candidate{
			Source:       "OpenLibrary",
			Label:        buildLabel("OpenLibrary", "", "ISBN "+isbn),
			ThumbnailURL: fmt.Sprintf("%s/b/isbn/%s-M.jpg", g.openLibraryCoversURL, isbn),
			FullSizeURL:  fmt.Sprintf("%s/b/isbn/%s-L.jpg", g.openLibraryCoversURL, isbn),
		})
	}

	candidates = append(candidates, g.searchAll(ctx, query)...)
	candidates = dedupe(candidates)

	if limit := config.MaxCoverCandidates(); len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return g.fetchThumbnails(ctx, candidates)
}

// searchAll queries every source concurrently and keeps source order
// stable in the combined list.
func (g *Gatherer) searchAll(ctx context.Context, query provider.Query) []Candidate {
	results := make([][]Candidate, len(g.sources))

	var wg sync.WaitGroup
	for i, src := range g.sources {
		wg.Add(1)
		go func(i int, src provider.CoverSource) {
			defer wg.Done()

			hits, err := src.SearchCovers(ctx, query, perSourceLimit)
			if err != nil {
				slog.Debug("Cover search failed", "provider", src.Name(), "error", err)
				return
			}
			for _, hit := range hits {
				results[i] = append(results[i], Candidate{
					Source:       src.Name(),
					Label:        buildLabel(src.Name(), hit.Year, hit.Publisher),
					ThumbnailURL: hit.ThumbnailURL,
					FullSizeURL:  hit.FullSizeURL,
				})
			}
		}(i, src)
	}
	wg.Wait()

	var combined []Candidate
	for _, r := range results {
		combined = append(combined, r...)
	}
	return combined
}

// fetchThumbnails downloads every candidate thumbnail concurrently and
// returns only the candidates whose image decoded. All fetches complete
// before filtering; completion order does not affect list order.
func (g *Gatherer) fetchThumbnails(ctx context.Context, candidates []Candidate) []Candidate {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(thumbnailFetchers)

	fetched := make([][]byte, len(candidates))
	for i, cand := range candidates {
		eg.Go(func() error {
			data, err := g.fetchThumbnail(ctx, cand.ThumbnailURL)
			if err != nil {
				slog.Debug("Thumbnail fetch failed, dropping candidate",
					"url", cand.ThumbnailURL, "error", err)
				return nil
			}
			fetched[i] = data
			return nil
		})
	}
	_ = eg.Wait()

	valid := make([]Candidate, 0, len(candidates))
	for i, cand := range candidates {
		if len(fetched[i]) == 0 {
			continue
		}
		cand.Thumbnail = fetched[i]
		valid = append(valid, cand)
	}
	return valid
}

// fetchThumbnail downloads a thumbnail and bounds its width so the
// preview bytes handed to callers stay small. Full resolution images go
// through FetchImage untouched.
func (g *Gatherer) fetchThumbnail(ctx context.Context, thumbnailURL string) ([]byte, error) {
	data, err := FetchImage(ctx, g.httpClient, thumbnailURL)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() <= maxThumbnailWidth {
		return data, nil
	}

	resized := imaging.Resize(img, maxThumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		// Keep the original bytes rather than drop the candidate.
		return data, nil
	}
	return buf.Bytes(), nil
}

// DownloadFull fetches the full resolution image for a candidate,
// falling back to the thumbnail URL when no larger one is known.
func (g *Gatherer) DownloadFull(ctx context.Context, cand Candidate) ([]byte, error) {
	u := cand.FullSizeURL
	if u == "" {
		u = cand.ThumbnailURL
	}
	return FetchImage(ctx, g.httpClient, u)
}

// FetchImage downloads a URL and verifies the body decodes as an image.
// Catalog CDNs routinely answer 200 with an HTML error page; decoding
// is the only reliable way to reject those.
func FetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, error) {
	if imageURL == "" {
		return nil, errors.New("no image URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}

	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("response is not a decodable image: %w", err)
	}

	return data, nil
}

// buildLabel assembles the provenance label, e.g.
// "Google Books · 2003 · Penguin". Empty parts are skipped.
func buildLabel(source, year, publisher string) string {
	parts := []string{source}
	if year != "" {
		parts = append(parts, year)
	}
	if publisher != "" {
		parts = append(parts, publisher)
	}
	return strings.Join(parts, " · ")
}

// dedupe removes candidates sharing a thumbnail URL, keeping the first.
// Two editions with the same cover image should appear once.
func dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ThumbnailURL == "" || seen[cand.ThumbnailURL] {
			continue
		}
		seen[cand.ThumbnailURL] = true
		cand.ID = candidateID(cand.ThumbnailURL)
		out = append(out, cand)
	}
	return out
}

// candidateID derives a stable identity from the thumbnail source URL.
func candidateID(thumbnailURL string) string {
	sum := sha256.Sum256([]byte(thumbnailURL))
	return hex.EncodeToString(sum[:6])
}
