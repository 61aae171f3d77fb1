// Package metadata defines the bibliographic record type shared by the
// embedded extractor, the lookup providers and the merge engine.
package metadata

import (
	"path/filepath"
	"strings"
)

// Record holds bibliographic facts for one book. Every field is optional;
// an empty value means "not known yet", which is the normal state before
// enrichment. Records are treated as immutable once built: Merge returns
// a new record instead of mutating its inputs.
type Record struct {
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	Authors       []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Publisher     string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	PublishedDate string   `json:"published_date,omitempty" yaml:"published_date,omitempty"`
	PageCount     int      `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	ISBN10        string   `json:"isbn_10,omitempty" yaml:"isbn_10,omitempty"`
	ISBN13        string   `json:"isbn_13,omitempty" yaml:"isbn_13,omitempty"`
	Categories    []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Language      string   `json:"language,omitempty" yaml:"language,omitempty"`
	CoverURL      string   `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
	CoverImage    []byte   `json:"-" yaml:"-"`
	AverageRating float64  `json:"average_rating,omitempty" yaml:"average_rating,omitempty"`
	RatingsCount  int      `json:"ratings_count,omitempty" yaml:"ratings_count,omitempty"`
}

// ISBN returns the best available ISBN, preferring ISBN-13.
func (r Record) ISBN() string {
	if r.ISBN13 != "" {
		return r.ISBN13
	}
	return r.ISBN10
}

// Author returns the primary (first) author, or "" when none is known.
func (r Record) Author() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return r.Authors[0]
}

// IsEmpty reports whether the record carries no information at all.
func (r Record) IsEmpty() bool {
	return r.Title == "" && len(r.Authors) == 0 && r.Description == "" &&
		r.Publisher == "" && r.PublishedDate == "" && r.PageCount == 0 &&
		r.ISBN10 == "" && r.ISBN13 == "" && len(r.Categories) == 0 &&
		r.Language == "" && r.CoverURL == "" && len(r.CoverImage) == 0 &&
		r.AverageRating == 0 && r.RatingsCount == 0
}

// TitleFromFilename derives a display title from a file name by dropping
// the extension and replacing underscores and hyphens with spaces.
// "My_Great-Book.epub" becomes "My Great Book".
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.Join(strings.Fields(base), " ")
}

// NormalizeISBN strips hyphens and spaces from an ISBN.
func NormalizeISBN(isbn string) string {
	normalized := strings.ReplaceAll(isbn, "-", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	return normalized
}

// ClassifyISBN stores the identifier on the record as ISBN-13 or ISBN-10.
// Thirteen digits starting with the Bookland prefix count as ISBN-13;
// exactly ten characters count as ISBN-10; anything else is ignored.
func (r *Record) ClassifyISBN(identifier string) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	id = strings.TrimPrefix(id, "urn:")
	id = strings.TrimPrefix(id, "isbn:")
	id = NormalizeISBN(strings.ToUpper(id))
	switch {
	case len(id) == 13 && allDigits(id) && (strings.HasPrefix(id, "978") || strings.HasPrefix(id, "979")):
		r.ISBN13 = id
	case len(id) == 10:
		r.ISBN10 = id
	}
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
