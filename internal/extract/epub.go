package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/lepinkainen/folio/internal/metadata"
)

// containerXML locates the OPF package document inside the archive.
type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// opfPackage models the Dublin Core subset we read from the OPF
// descriptor. Everything else in the package document is ignored.
type opfPackage struct {
	Metadata struct {
		Titles      []string `xml:"title"`
		Creators    []string `xml:"creator"`
		Publisher   string   `xml:"publisher"`
		Language    string   `xml:"language"`
		Description string   `xml:"description"`
		Date        string   `xml:"date"`
		Subjects    []string `xml:"subject"`
		Identifiers []string `xml:"identifier"`
	} `xml:"metadata"`
}

// extractEPUB reads the OPF descriptor from an EPUB archive.
func extractEPUB(path string) (metadata.Record, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("opening epub archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	opfPath, err := findOPFPath(&zr.Reader)
	if err != nil {
		return metadata.Record{}, err
	}

	var pkg opfPackage
	if err := decodeZipXML(&zr.Reader, opfPath, &pkg); err != nil {
		return metadata.Record{}, fmt.Errorf("parsing OPF descriptor: %w", err)
	}

	var rec metadata.Record
	md := pkg.Metadata

	if len(md.Titles) > 0 {
		rec.Title = strings.TrimSpace(md.Titles[0])
	}
	for _, creator := range md.Creators {
		if c := strings.TrimSpace(creator); c != "" {
			rec.Authors = append(rec.Authors, c)
		}
	}
	rec.Publisher = strings.TrimSpace(md.Publisher)
	rec.Language = strings.TrimSpace(md.Language)
	rec.Description = strings.TrimSpace(md.Description)
	rec.PublishedDate = strings.TrimSpace(md.Date)
	for _, subject := range md.Subjects {
		if s := strings.TrimSpace(subject); s != "" {
			rec.Categories = append(rec.Categories, s)
		}
	}
	for _, id := range md.Identifiers {
		rec.ClassifyISBN(id)
		if rec.ISBN13 != "" {
			break
		}
	}

	return rec, nil
}

// findOPFPath reads META-INF/container.xml to locate the OPF document.
// Falls back to content.opf, which many archives use without declaring.
func findOPFPath(zr *zip.Reader) (string, error) {
	var container containerXML
	if err := decodeZipXML(zr, "META-INF/container.xml", &container); err == nil {
		if len(container.Rootfiles) > 0 && container.Rootfiles[0].FullPath != "" {
			return container.Rootfiles[0].FullPath, nil
		}
	}

	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, nil
		}
	}

	return "", fmt.Errorf("no OPF descriptor in archive")
}

func decodeZipXML(zr *zip.Reader, name string, v any) error {
	f, err := zr.Open(name)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	decoder := xml.NewDecoder(f)
	// Some descriptors declare legacy charsets; read them as-is.
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
