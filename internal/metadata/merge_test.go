package metadata

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestMergeBaseWins(t *testing.T) {
	base := Record{Title: "Dune"}
	overlay := Record{Title: "Dune (Deluxe Edition)", CoverURL: "http://example.com/dune.jpg"}

	merged := Merge(base, overlay)

	assert.Equal(t, "Dune", merged.Title)
	assert.Equal(t, "http://example.com/dune.jpg", merged.CoverURL)
}

func TestMergeFillsEmptyFields(t *testing.T) {
	base := Record{
		Title:  "The Left Hand of Darkness",
		ISBN13: "9780441478125",
	}
	overlay := Record{
		Title:         "The Left Hand of Darkness: 50th Anniversary",
		Authors:       []string{"Ursula K. Le Guin"},
		Description:   "A groundbreaking work of science fiction.",
		Publisher:     "Ace",
		PublishedDate: "1969",
		PageCount:     304,
		Categories:    []string{"Science Fiction"},
		Language:      "en",
		AverageRating: 4.1,
		RatingsCount:  1234,
	}

	merged := Merge(base, overlay)

	assert.Equal(t, "The Left Hand of Darkness", merged.Title)
	assert.Equal(t, []string{"Ursula K. Le Guin"}, merged.Authors)
	assert.Equal(t, "Ace", merged.Publisher)
	assert.Equal(t, 304, merged.PageCount)
	assert.Equal(t, "9780441478125", merged.ISBN13)
	assert.Equal(t, 4.1, merged.AverageRating)
}

func TestMergeIdempotent(t *testing.T) {
	base := Record{Title: "Hyperion", Authors: []string{"Dan Simmons"}}
	overlay := Record{
		Title:       "Hyperion Cantos",
		Description: "The Shrike awaits.",
		Publisher:   "Doubleday",
	}

	once := Merge(base, overlay)
	twice := Merge(once, overlay)

	assert.Equal(t, once, twice)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := Record{Title: "Neuromancer"}
	overlay := Record{Title: "Neuromancer (Reissue)", Publisher: "Ace"}

	_ = Merge(base, overlay)

	assert.Equal(t, Record{Title: "Neuromancer"}, base)
	assert.Equal(t, "Neuromancer (Reissue)", overlay.Title)
}

func TestMergeBothEmpty(t *testing.T) {
	merged := Merge(Record{}, Record{})
	assert.True(t, merged.IsEmpty())
}
