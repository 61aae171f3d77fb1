package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/lepinkainen/folio/internal/metadata"
)

// Info dictionary string entries use literal-string syntax: /Title (Dune).
// This deliberately skips hex and UTF-16 strings; files using those fall
// back to the filename-derived title.
var (
	pdfTitleRe  = regexp.MustCompile(`/Title\s*\(([^)]*)\)`)
	pdfAuthorRe = regexp.MustCompile(`/Author\s*\(([^)]*)\)`)
	pdfPagesRe  = regexp.MustCompile(`/Type\s*/Pages[^>]*?/Count\s+(\d+)`)
	pdfCountRe  = regexp.MustCompile(`/Count\s+(\d+)`)
)

// Read at most this much of the file; Info dictionaries sit near one end.
const pdfScanLimit = 2 << 20

// extractPDF scans the raw document for Info-dictionary properties and a
// page count. A full object-graph parse is not worth it here: the fields
// we need are the query seed for catalog lookup, nothing more.
func extractPDF(path string) (metadata.Record, error) {
	raw, err := readBounded(path, pdfScanLimit)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("reading pdf: %w", err)
	}
	if !strings.HasPrefix(string(raw[:min(5, len(raw))]), "%PDF-") {
		return metadata.Record{}, fmt.Errorf("not a pdf document")
	}

	var rec metadata.Record
	if m := pdfTitleRe.FindSubmatch(raw); m != nil {
		rec.Title = decodePDFString(m[1])
	}
	if m := pdfAuthorRe.FindSubmatch(raw); m != nil {
		if author := decodePDFString(m[1]); author != "" {
			rec.Authors = []string{author}
		}
	}
	if m := pdfPagesRe.FindSubmatch(raw); m != nil {
		rec.PageCount = atoi(string(m[1]))
	} else if m := pdfCountRe.FindSubmatch(raw); m != nil {
		rec.PageCount = atoi(string(m[1]))
	}

	return rec, nil
}

func readBounded(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size > limit {
		size = limit
	}
	buf := make([]byte, size)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// decodePDFString handles the escape sequences that actually occur in
// Info dictionaries and strips a UTF-16 BOM marker if present.
func decodePDFString(b []byte) string {
	s := string(b)
	s = strings.ReplaceAll(s, `\(`, "(")
	s = strings.ReplaceAll(s, `\)`, ")")
	s = strings.ReplaceAll(s, `\\`, `\`)
	s = strings.TrimPrefix(s, "\xfe\xff")
	return strings.TrimSpace(s)
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
