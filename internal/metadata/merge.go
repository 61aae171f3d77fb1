package metadata

// Merge combines two records field by field. A field from base is kept
// whenever it is present and non-empty; otherwise the overlay's value is
// substituted. Neither input is modified.
//
// The orchestrator applies this twice, embedded data as base over
// Google Books and that result over OpenLibrary, so data extracted
// from the file itself always beats catalog data, and Google Books beats
// OpenLibrary for any field both populate. Embedded metadata describes
// this exact file, not a possibly mismatched catalog edition.
func Merge(base, overlay Record) Record {
	merged := base

	if merged.Title == "" {
		merged.Title = overlay.Title
	}
	if len(merged.Authors) == 0 {
		merged.Authors = overlay.Authors
	}
	if merged.Description == "" {
		merged.Description = overlay.Description
	}
	if merged.Publisher == "" {
		merged.Publisher = overlay.Publisher
	}
	if merged.PublishedDate == "" {
		merged.PublishedDate = overlay.PublishedDate
	}
	if merged.PageCount == 0 {
		merged.PageCount = overlay.PageCount
	}
	if merged.ISBN10 == "" {
		merged.ISBN10 = overlay.ISBN10
	}
	if merged.ISBN13 == "" {
		merged.ISBN13 = overlay.ISBN13
	}
	if len(merged.Categories) == 0 {
		merged.Categories = overlay.Categories
	}
	if merged.Language == "" {
		merged.Language = overlay.Language
	}
	if merged.CoverURL == "" {
		merged.CoverURL = overlay.CoverURL
	}
	if len(merged.CoverImage) == 0 {
		merged.CoverImage = overlay.CoverImage
	}
	if merged.AverageRating == 0 {
		merged.AverageRating = overlay.AverageRating
	}
	if merged.RatingsCount == 0 {
		merged.RatingsCount = overlay.RatingsCount
	}

	return merged
}
