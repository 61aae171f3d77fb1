// Package extract pulls bibliographic metadata out of the book file
// itself, with no network involved. Extraction is best effort and never
// fails: on any parse problem it falls back to a record whose title is
// derived from the file name, which is enough to seed a catalog lookup.
package extract

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/lepinkainen/folio/internal/metadata"
)

// Format identifies the declared container format of an imported file.
type Format string

const (
	// FormatEPUB is a zip archive carrying an OPF descriptor.
	FormatEPUB Format = "epub"
	// FormatPDF carries document properties in its Info dictionary.
	FormatPDF Format = "pdf"
	// FormatAudio covers audiobook containers (mp3/m4b). Their tag data
	// is sparse and unreliable, so extraction defers to network lookup.
	FormatAudio Format = "audio"
)

// DetectFormat maps a file extension to its Format. Unknown extensions
// are treated as audio so extraction still produces a usable title.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".epub":
		return FormatEPUB
	case ".pdf":
		return FormatPDF
	default:
		return FormatAudio
	}
}

// Extract reads embedded metadata from the file at path. It always
// returns a record with a non-empty title: whatever the container
// yields, topped up with the filename-derived title as a floor.
func Extract(path string, format Format) metadata.Record {
	var rec metadata.Record
	var err error

	switch format {
	case FormatEPUB:
		rec, err = extractEPUB(path)
	case FormatPDF:
		rec, err = extractPDF(path)
	default:
		// Deferred to network lookup on purpose.
	}

	if err != nil {
		slog.Debug("Embedded extraction failed, falling back to filename",
			"path", path, "format", format, "error", err)
		rec = metadata.Record{}
	}

	if rec.Title == "" {
		rec.Title = metadata.TitleFromFilename(path)
	}

	return rec
}
