// Package googlebooks implements catalog lookup against the Google Books
// volumes API. It is the primary metadata provider.
package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/provider"
	"github.com/lepinkainen/folio/internal/ratelimit"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/books/v1"
	maxSearchResults = 5
)

// Client queries the Google Books volumes API.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	apiKey     string
}

// Compile-time checks against the provider contracts.
var (
	_ provider.Client      = (*Client)(nil)
	_ provider.CoverSource = (*Client)(nil)
)

// New creates a Google Books client using the configured API key.
func New() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.HTTPTimeout()},
		limiter:    ratelimit.New("GoogleBooks", 1),
		baseURL:    defaultBaseURL,
		apiKey:     config.GoogleBooksAPIKey,
	}
}

// Name identifies this provider in logs and provenance labels.
func (c *Client) Name() string {
	return "Google Books"
}

// volumesResponse matches the volumes API response structure. Unknown
// fields are ignored; missing fields decode to zero values.
type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string     `json:"title"`
		Authors       []string   `json:"authors"`
		Publisher     string     `json:"publisher"`
		PublishedDate string     `json:"publishedDate"`
		Description   string     `json:"description"`
		PageCount     int        `json:"pageCount"`
		Categories    []string   `json:"categories"`
		Language      string     `json:"language"`
		AverageRating float64    `json:"averageRating"`
		RatingsCount  int        `json:"ratingsCount"`
		ImageLinks    imageLinks `json:"imageLinks"`
		IndustryIDs   []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
	} `json:"volumeInfo"`
}

type imageLinks struct {
	ExtraLarge     string `json:"extraLarge"`
	Large          string `json:"large"`
	Medium         string `json:"medium"`
	Small          string `json:"small"`
	Thumbnail      string `json:"thumbnail"`
	SmallThumbnail string `json:"smallThumbnail"`
}

// cachedResult wraps a search result for negative caching.
type cachedResult struct {
	Record   *metadata.Record `json:"record"`
	NotFound bool             `json:"not_found"`
}

// Search returns the single best matching volume for the query.
func (c *Client) Search(ctx context.Context, query provider.Query) (*metadata.Record, error) {
	q, err := buildQuery(query)
	if err != nil {
		return nil, err
	}

	cached, _, err := cache.GetOrFetchWithTTL("googlebooks_cache", q, func() (*cachedResult, error) {
		return c.fetchBest(ctx, q)
	}, cache.SelectNegativeCacheTTL(func(r *cachedResult) bool {
		return r.NotFound
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}

	return cached.Record, nil
}

func (c *Client) fetchBest(ctx context.Context, q string) (*cachedResult, error) {
	result, err := c.fetchVolumes(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	if result.TotalItems == 0 || len(result.Items) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	rec := recordFromVolume(result.Items[0])
	slog.Debug("Google Books match", "query", q, "title", rec.Title)
	return &cachedResult{Record: &rec}, nil
}

// SearchCovers returns candidate covers drawn from up to limit distinct
// volumes, not just the single best match.
func (c *Client) SearchCovers(ctx context.Context, query provider.Query, limit int) ([]provider.CoverHit, error) {
	q, err := buildQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	result, err := c.fetchVolumes(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	}

	var hits []provider.CoverHit
	for _, item := range result.Items {
		info := item.VolumeInfo
		thumb := info.ImageLinks.Thumbnail
		if thumb == "" {
			thumb = info.ImageLinks.SmallThumbnail
		}
		if thumb == "" {
			continue
		}
		hits = append(hits, provider.CoverHit{
			ThumbnailURL: thumb,
			FullSizeURL:  bestImageURL(info.ImageLinks),
			Year:         yearOf(info.PublishedDate),
			Publisher:    info.Publisher,
		})
		if len(hits) == limit {
			break
		}
	}

	return hits, nil
}

func (c *Client) fetchVolumes(ctx context.Context, q string, maxResults int) (*volumesResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s/volumes?q=%s&maxResults=%d", c.baseURL, q, maxResults)
	if c.apiKey != "" {
		reqURL = fmt.Sprintf("%s&key=%s", reqURL, url.QueryEscape(c.apiKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("volumes request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("volumes request returned status %d", resp.StatusCode)
	}

	var result volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding volumes response: %w", err)
	}

	return &result, nil
}

// buildQuery constructs the q parameter. An ISBN is always used alone;
// otherwise whatever subset of title/author is present forms the query.
func buildQuery(query provider.Query) (string, error) {
	if isbn := metadata.NormalizeISBN(query.ISBN); isbn != "" {
		return "isbn:" + isbn, nil
	}

	var parts []string
	if query.Title != "" {
		parts = append(parts, "intitle:"+url.QueryEscape(query.Title))
	}
	if query.Author != "" {
		parts = append(parts, "inauthor:"+url.QueryEscape(query.Author))
	}
	if len(parts) == 0 {
		return "", provider.ErrNoQuery
	}

	return strings.Join(parts, "+"), nil
}

func recordFromVolume(v volume) metadata.Record {
	info := v.VolumeInfo

	rec := metadata.Record{
		Title:         info.Title,
		Authors:       info.Authors,
		Description:   info.Description,
		Publisher:     info.Publisher,
		PublishedDate: info.PublishedDate,
		PageCount:     info.PageCount,
		Categories:    info.Categories,
		Language:      info.Language,
		AverageRating: info.AverageRating,
		RatingsCount:  info.RatingsCount,
		CoverURL:      bestImageURL(info.ImageLinks),
	}

	for _, id := range info.IndustryIDs {
		switch id.Type {
		case "ISBN_13":
			rec.ISBN13 = id.Identifier
		case "ISBN_10":
			rec.ISBN10 = id.Identifier
		}
	}

	return rec
}

// bestImageURL picks the largest listed image. When only thumbnail-size
// links exist, dropping the zoom parameter to 0 yields a higher
// resolution variant than the API advertises.
func bestImageURL(links imageLinks) string {
	for _, u := range []string{links.ExtraLarge, links.Large, links.Medium, links.Small} {
		if u != "" {
			return u
		}
	}
	for _, u := range []string{links.Thumbnail, links.SmallThumbnail} {
		if u != "" {
			return strings.Replace(u, "zoom=1", "zoom=0", 1)
		}
	}
	return ""
}

func yearOf(publishedDate string) string {
	if len(publishedDate) >= 4 {
		return publishedDate[:4]
	}
	return publishedDate
}
