package library

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/metadata"
)

func TestAddAndGet(t *testing.T) {
	store := NewStore()
	store.Add("book.epub", "/library/book.epub")

	item, ok := store.Get("book.epub")
	require.True(t, ok)
	assert.Equal(t, "/library/book.epub", item.Path)
	assert.False(t, item.MetadataFetched)
}

func TestAddIsIdempotent(t *testing.T) {
	store := NewStore()
	store.Add("book.epub", "/library/book.epub")
	store.Commit("book.epub", metadata.Record{Title: "Dune"})

	// Re-adding must not reset the enriched item.
	store.Add("book.epub", "/library/book.epub")

	item, ok := store.Get("book.epub")
	require.True(t, ok)
	assert.True(t, item.MetadataFetched)
	assert.Equal(t, "Dune", item.Record.Title)
}

func TestCommitFlipsFetchedFlag(t *testing.T) {
	store := NewStore()
	store.Add("book.epub", "/library/book.epub")

	ok := store.Commit("book.epub", metadata.Record{Title: "Dune"})
	require.True(t, ok)

	item, _ := store.Get("book.epub")
	assert.True(t, item.MetadataFetched)
	assert.Equal(t, "Dune", item.Record.Title)
}

func TestCommitAfterRemoveWritesNothing(t *testing.T) {
	store := NewStore()
	store.Add("book.epub", "/library/book.epub")
	store.Remove("book.epub")

	ok := store.Commit("book.epub", metadata.Record{Title: "Dune"})
	assert.False(t, ok)

	_, found := store.Get("book.epub")
	assert.False(t, found)
}

func TestConcurrentCommits(t *testing.T) {
	store := NewStore()
	for _, key := range []string{"a.epub", "b.pdf", "c.m4b"} {
		store.Add(key, "/library/"+key)
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a.epub", "b.pdf", "c.m4b"} {
		for range 10 {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				store.Commit(k, metadata.Record{Title: k})
			}(key)
		}
	}
	wg.Wait()

	for _, key := range []string{"a.epub", "b.pdf", "c.m4b"} {
		item, ok := store.Get(key)
		require.True(t, ok)
		assert.True(t, item.MetadataFetched)
	}
}
