// Package openlibrary implements catalog lookup against the OpenLibrary
// API. It is the secondary provider, consulted to fill gaps the primary
// lookup left open.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/provider"
	"github.com/lepinkainen/folio/internal/ratelimit"
)

const (
	defaultBaseURL   = "https://openlibrary.org"
	defaultCoversURL = "https://covers.openlibrary.org"
	maxSearchDocs    = 5
)

// Client queries the OpenLibrary books and search APIs.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	coversURL  string
}

var (
	_ provider.Client      = (*Client)(nil)
	_ provider.CoverSource = (*Client)(nil)
)

// New creates an OpenLibrary client. OpenLibrary asks for at most one
// request per second from unauthenticated clients.
func New() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.HTTPTimeout()},
		limiter:    ratelimit.New("OpenLibrary", 1),
		baseURL:    defaultBaseURL,
		coversURL:  defaultCoversURL,
	}
}

// Name identifies this provider in logs and provenance labels.
func (c *Client) Name() string {
	return "OpenLibrary"
}

// bookData matches one entry of the jscmd=data books response.
type bookData struct {
	Title         string `json:"title"`
	PublishDate   string `json:"publish_date"`
	NumberOfPages int    `json:"number_of_pages"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Subjects []struct {
		Name string `json:"name"`
	} `json:"subjects"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
}

// editionData matches the /isbn/{isbn}.json edition document. Consulted
// as a fallback when the data API omits the page count.
type editionData struct {
	NumberOfPages int      `json:"number_of_pages"`
	Publishers    []string `json:"publishers"`
	Languages     []struct {
		Key string `json:"key"`
	} `json:"languages"`
	Description json.RawMessage `json:"description"`
}

// searchResponse matches the /search.json document list.
type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Title            string   `json:"title"`
	AuthorNames      []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	Publishers       []string `json:"publisher"`
	CoverID          int      `json:"cover_i"`
	ISBNs            []string `json:"isbn"`
	Languages        []string `json:"language"`
}

type cachedResult struct {
	Record   *metadata.Record `json:"record"`
	NotFound bool             `json:"not_found"`
}

// Search returns the single best matching record for the query. With an
// ISBN it uses the direct books lookup; otherwise the search API.
func (c *Client) Search(ctx context.Context, query provider.Query) (*metadata.Record, error) {
	if query.Empty() {
		return nil, provider.ErrNoQuery
	}

	key := cacheKey(query)
	cached, _, err := cache.GetOrFetchWithTTL("openlibrary_cache", key, func() (*cachedResult, error) {
		if isbn := metadata.NormalizeISBN(query.ISBN); isbn != "" {
			return c.fetchByISBN(ctx, isbn)
		}
		return c.fetchBySearch(ctx, query)
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

func cacheKey(query provider.Query) string {
	if isbn := metadata.NormalizeISBN(query.ISBN); isbn != "" {
		return "isbn:" + isbn
	}
	return "q:" + query.Title + "|" + query.Author
}

// fetchByISBN uses the books API (jscmd=data), whose response is a map
// keyed "ISBN:<isbn>".
func (c *Client) fetchByISBN(ctx context.Context, isbn string) (*cachedResult, error) {
	reqURL := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", c.baseURL, isbn)

	var result map[string]bookData
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}

	data, ok := result["ISBN:"+isbn]
	if !ok {
		return &cachedResult{NotFound: true}, nil
	}

	rec := metadata.Record{
		Title:         data.Title,
		PublishedDate: data.PublishDate,
		PageCount:     data.NumberOfPages,
	}
	rec.ClassifyISBN(isbn)
	for _, a := range data.Authors {
		if a.Name != "" {
			rec.Authors = append(rec.Authors, a.Name)
		}
	}
	if len(data.Publishers) > 0 {
		rec.Publisher = data.Publishers[0].Name
	}
	for _, s := range data.Subjects {
		if s.Name != "" {
			rec.Categories = append(rec.Categories, s.Name)
		}
	}
	// Largest listed cover wins.
	switch {
	case data.Cover.Large != "":
		rec.CoverURL = data.Cover.Large
	case data.Cover.Medium != "":
		rec.CoverURL = data.Cover.Medium
	case data.Cover.Small != "":
		rec.CoverURL = data.Cover.Small
	}

	// The data API often omits page count and description; the edition
	// document has both.
	if edition, err := c.fetchEdition(ctx, isbn); err == nil && edition != nil {
		if rec.PageCount == 0 {
			rec.PageCount = edition.NumberOfPages
		}
		if rec.Publisher == "" && len(edition.Publishers) > 0 {
			rec.Publisher = edition.Publishers[0]
		}
		if rec.Description == "" {
			rec.Description = descriptionText(edition.Description)
		}
	}

	slog.Debug("OpenLibrary match", "isbn", isbn, "title", rec.Title)
	return &cachedResult{Record: &rec}, nil
}

func (c *Client) fetchEdition(ctx context.Context, isbn string) (*editionData, error) {
	reqURL := fmt.Sprintf("%s/isbn/%s.json", c.baseURL, isbn)

	var edition editionData
	if err := c.getJSON(ctx, reqURL, &edition); err != nil {
		return nil, err
	}
	return &edition, nil
}

func (c *Client) fetchBySearch(ctx context.Context, query provider.Query) (*cachedResult, error) {
	result, err := c.search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(result.Docs) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	rec := recordFromDoc(result.Docs[0], c.coversURL)
	slog.Debug("OpenLibrary search match", "title", rec.Title)
	return &cachedResult{Record: &rec}, nil
}

// SearchCovers returns candidate covers from up to limit distinct search
// documents. Covers come from the image CDN keyed by numeric cover id.
func (c *Client) SearchCovers(ctx context.Context, query provider.Query, limit int) ([]provider.CoverHit, error) {
	if query.Empty() {
		return nil, provider.ErrNoQuery
	}
	if limit <= 0 || limit > maxSearchDocs {
		limit = maxSearchDocs
	}

	result, err := c.search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	}

	var hits []provider.CoverHit
	for _, doc := range result.Docs {
		if doc.CoverID <= 0 {
			continue
		}
		hit := provider.CoverHit{
			ThumbnailURL: CoverURL(c.coversURL, doc.CoverID, "M"),
			FullSizeURL:  CoverURL(c.coversURL, doc.CoverID, "L"),
		}
		if doc.FirstPublishYear > 0 {
			hit.Year = strconv.Itoa(doc.FirstPublishYear)
		}
		if len(doc.Publishers) > 0 {
			hit.Publisher = doc.Publishers[0]
		}
		hits = append(hits, hit)
		if len(hits) == limit {
			break
		}
	}

	return hits, nil
}

func (c *Client) search(ctx context.Context, query provider.Query, limit int) (*searchResponse, error) {
	params := url.Values{}
	if isbn := metadata.NormalizeISBN(query.ISBN); isbn != "" {
		params.Set("q", "isbn:"+isbn)
	} else {
		if query.Title != "" {
			params.Set("title", query.Title)
		}
		if query.Author != "" {
			params.Set("author", query.Author)
		}
	}
	params.Set("limit", strconv.Itoa(limit))

	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())

	var result searchResponse
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("OpenLibrary request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenLibrary returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding OpenLibrary response: %w", err)
	}
	return nil
}

func recordFromDoc(doc searchDoc, coversURL string) metadata.Record {
	rec := metadata.Record{
		Title:   doc.Title,
		Authors: doc.AuthorNames,
	}
	if doc.FirstPublishYear > 0 {
		rec.PublishedDate = strconv.Itoa(doc.FirstPublishYear)
	}
	if len(doc.Publishers) > 0 {
		rec.Publisher = doc.Publishers[0]
	}
	if len(doc.Languages) > 0 {
		rec.Language = doc.Languages[0]
	}
	for _, isbn := range doc.ISBNs {
		rec.ClassifyISBN(isbn)
		if rec.ISBN13 != "" && rec.ISBN10 != "" {
			break
		}
	}
	if doc.CoverID > 0 {
		rec.CoverURL = CoverURL(coversURL, doc.CoverID, "L")
	}
	return rec
}

// descriptionText unwraps the edition description, which is either a
// plain string or a {"type": ..., "value": ...} object.
func descriptionText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	return ""
}

// CoverURL builds an image CDN URL for a numeric cover id. Size is "S",
// "M" or "L".
func CoverURL(coversURL string, coverID int, size string) string {
	return fmt.Sprintf("%s/b/id/%d-%s.jpg", coversURL, coverID, size)
}
