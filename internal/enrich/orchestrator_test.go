package enrich

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/extract"
	"github.com/lepinkainen/folio/internal/library"
	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/provider"
)

// fakeProvider is a scripted provider.Client that counts invocations.
type fakeProvider struct {
	mu    sync.Mutex
	name  string
	rec   *metadata.Record
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, q provider.Query) (*metadata.Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	rec := *f.rec
	return &rec, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func notFoundProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, err: provider.ErrNotFound}
}

func newTestOrchestrator(primary, secondary provider.Client) (*Orchestrator, *library.Store) {
	store := library.NewStore()
	return New(primary, secondary, nil, store), store
}

// writeDuneEPUB creates an archive whose descriptor carries only a title.
func writeDuneEPUB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dune.epub")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("content.opf")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<package xmlns:dc="http://purl.org/dc/elements/1.1/">
  <metadata><dc:title>Dune</dc:title></metadata>
</package>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func TestDegradedStateWhenEverythingFails(t *testing.T) {
	orc, store := newTestOrchestrator(notFoundProvider("Google Books"), notFoundProvider("OpenLibrary"))
	store.Add("My_Great-Book.epub", "/imports/My_Great-Book.epub")

	rec, err := orc.FetchMetadata(context.Background(), "/imports/My_Great-Book.epub", extract.FormatEPUB)
	require.NoError(t, err)

	assert.Equal(t, "My Great Book", rec.Title)
	assert.Empty(t, rec.Authors)
	assert.Empty(t, rec.Description)
	assert.Empty(t, rec.CoverURL)

	item, ok := store.Get("My_Great-Book.epub")
	require.True(t, ok)
	assert.True(t, item.MetadataFetched, "enrichment done even though nothing was found")
}

func TestEmbeddedTitleWinsOverProvider(t *testing.T) {
	path := writeDuneEPUB(t)

	primary := &fakeProvider{name: "Google Books", rec: &metadata.Record{
		Title:       "Dune (Deluxe Edition)",
		Description: "Arrakis. Dune. Desert planet.",
		CoverURL:    "http://img.example.com/dune.jpg",
	}}
	secondary := notFoundProvider("OpenLibrary")

	orc, store := newTestOrchestrator(primary, secondary)
	store.Add(Key(path), path)

	rec, err := orc.FetchMetadataWithOptions(context.Background(), path, extract.FormatEPUB,
		Options{SkipCoverDownload: true})
	require.NoError(t, err)

	assert.Equal(t, "Dune", rec.Title, "embedded title wins")
	assert.Equal(t, "http://img.example.com/dune.jpg", rec.CoverURL, "provider fills the cover gap")
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, secondary.callCount(), "primary satisfied cover and description")
}

func TestSecondaryFillsGaps(t *testing.T) {
	path := writeDuneEPUB(t)

	primary := &fakeProvider{name: "Google Books", rec: &metadata.Record{
		Title:    "Dune",
		CoverURL: "http://img.example.com/dune.jpg",
		// no description: secondary should be consulted
	}}
	secondary := &fakeProvider{name: "OpenLibrary", rec: &metadata.Record{
		Title:       "Dune (1965)",
		Description: "From OpenLibrary.",
		Publisher:   "Chilton",
	}}

	orc, store := newTestOrchestrator(primary, secondary)
	store.Add(Key(path), path)

	rec, err := orc.FetchMetadataWithOptions(context.Background(), path, extract.FormatEPUB,
		Options{SkipCoverDownload: true})
	require.NoError(t, err)

	assert.Equal(t, 1, secondary.callCount())
	assert.Equal(t, "Dune", rec.Title, "earlier merge result still wins")
	assert.Equal(t, "From OpenLibrary.", rec.Description)
	assert.Equal(t, "Chilton", rec.Publisher)
}

func TestResultCacheSkipsProviders(t *testing.T) {
	primary := notFoundProvider("Google Books")
	secondary := notFoundProvider("OpenLibrary")

	orc, store := newTestOrchestrator(primary, secondary)
	store.Add("book.pdf", "/imports/book.pdf")

	_, err := orc.FetchMetadata(context.Background(), "/imports/book.pdf", extract.FormatPDF)
	require.NoError(t, err)
	primaryCalls := primary.callCount()
	secondaryCalls := secondary.callCount()

	rec, err := orc.FetchMetadata(context.Background(), "/imports/book.pdf", extract.FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, "book", rec.Title)
	assert.Equal(t, primaryCalls, primary.callCount(), "cache hit must not query providers")
	assert.Equal(t, secondaryCalls, secondary.callCount())
}

func TestForceRefreshBypassesResultCache(t *testing.T) {
	primary := notFoundProvider("Google Books")
	orc, store := newTestOrchestrator(primary, notFoundProvider("OpenLibrary"))
	store.Add("book.pdf", "/imports/book.pdf")

	_, err := orc.FetchMetadata(context.Background(), "/imports/book.pdf", extract.FormatPDF)
	require.NoError(t, err)
	first := primary.callCount()

	_, err = orc.FetchMetadataWithOptions(context.Background(), "/imports/book.pdf", extract.FormatPDF,
		Options{ForceRefresh: true})
	require.NoError(t, err)

	assert.Greater(t, primary.callCount(), first, "refresh re-runs the pipeline")
}

func TestCancelledContextDoesNotCommit(t *testing.T) {
	orc, store := newTestOrchestrator(notFoundProvider("Google Books"), notFoundProvider("OpenLibrary"))
	store.Add("book.epub", "/imports/book.epub")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orc.FetchMetadata(ctx, "/imports/book.epub", extract.FormatEPUB)
	require.Error(t, err)

	item, ok := store.Get("book.epub")
	require.True(t, ok)
	assert.False(t, item.MetadataFetched, "cancelled run must not flip the flag")
}

func TestCommitSkippedWhenItemRemoved(t *testing.T) {
	orc, store := newTestOrchestrator(notFoundProvider("Google Books"), notFoundProvider("OpenLibrary"))
	store.Add("book.epub", "/imports/book.epub")
	store.Remove("book.epub")

	_, err := orc.FetchMetadata(context.Background(), "/imports/book.epub", extract.FormatEPUB)
	require.NoError(t, err)

	_, ok := store.Get("book.epub")
	assert.False(t, ok, "late commit must not resurrect a removed item")
}

func TestCoverDownloadFailureStillCommits(t *testing.T) {
	config.SetDownloadCovers(true)
	t.Cleanup(func() { config.SetDownloadCovers(false) })

	primary := &fakeProvider{name: "Google Books", rec: &metadata.Record{
		Title:       "Dune",
		Description: "Desert planet.",
		CoverURL:    "http://img.example.com/dune.jpg",
	}}

	orc, store := newTestOrchestrator(primary, notFoundProvider("OpenLibrary"))
	store.Add("dune.epub", "/imports/dune.epub")

	httpmock.ActivateNonDefault(orc.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder("GET", "http://img.example.com/dune.jpg",
		httpmock.NewStringResponder(500, "backend error"))

	rec, err := orc.FetchMetadata(context.Background(), "/imports/dune.epub", extract.FormatEPUB)
	require.NoError(t, err)

	assert.Empty(t, rec.CoverImage, "failed download leaves the image empty")
	assert.Equal(t, "http://img.example.com/dune.jpg", rec.CoverURL)

	item, _ := store.Get("dune.epub")
	assert.True(t, item.MetadataFetched, "cover failure never blocks the commit")
}

func TestCoverDownloaded(t *testing.T) {
	config.SetDownloadCovers(true)
	t.Cleanup(func() { config.SetDownloadCovers(false) })

	primary := &fakeProvider{name: "Google Books", rec: &metadata.Record{
		Title:       "Dune",
		Description: "Desert planet.",
		CoverURL:    "http://img.example.com/dune.jpg",
	}}

	orc, store := newTestOrchestrator(primary, notFoundProvider("OpenLibrary"))
	store.Add("dune.epub", "/imports/dune.epub")

	httpmock.ActivateNonDefault(orc.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder("GET", "http://img.example.com/dune.jpg",
		httpmock.NewBytesResponder(200, pngBytes(t)))

	rec, err := orc.FetchMetadata(context.Background(), "/imports/dune.epub", extract.FormatEPUB)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.CoverImage)
}

func TestEnrichAsyncFlipsFlagEventually(t *testing.T) {
	orc, store := newTestOrchestrator(notFoundProvider("Google Books"), notFoundProvider("OpenLibrary"))
	store.Add("slow.epub", "/imports/slow.epub")

	orc.EnrichAsync(context.Background(), "/imports/slow.epub", extract.FormatEPUB)

	require.Eventually(t, func() bool {
		item, ok := store.Get("slow.epub")
		return ok && item.MetadataFetched
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentEnrichmentsForDifferentItems(t *testing.T) {
	primary := &fakeProvider{name: "Google Books", rec: &metadata.Record{
		Title: "Found", Description: "d", CoverURL: "",
	}}
	orc, store := newTestOrchestrator(primary, notFoundProvider("OpenLibrary"))

	keys := []string{"a.epub", "b.epub", "c.epub", "d.epub"}
	for _, key := range keys {
		store.Add(key, "/imports/"+key)
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, err := orc.FetchMetadata(context.Background(), "/imports/"+k, extract.FormatEPUB)
			assert.NoError(t, err)
		}(key)
	}
	wg.Wait()

	for _, key := range keys {
		item, ok := store.Get(key)
		require.True(t, ok)
		assert.True(t, item.MetadataFetched)
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "not_started", StateNotStarted.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "querying_secondary", StateQueryingSecondary.String())
}
