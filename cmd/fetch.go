package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/folio/internal/covers"
	"github.com/lepinkainen/folio/internal/enrich"
	"github.com/lepinkainen/folio/internal/extract"
	"github.com/lepinkainen/folio/internal/fileutil"
	"github.com/lepinkainen/folio/internal/library"
	"github.com/lepinkainen/folio/internal/provider/googlebooks"
	"github.com/lepinkainen/folio/internal/provider/openlibrary"
)

// FetchCmd enriches one book file and prints the consolidated record.
type FetchCmd struct {
	File     string `arg:"" help:"Path to the book file (epub, pdf or audiobook)"`
	Format   string `help:"Declared format (epub/pdf/audio); detected from extension when omitted"`
	Refresh  bool   `help:"Bypass the result cache and re-run the full pipeline"`
	NoCover  bool   `help:"Skip downloading the cover image"`
	CoverOut string `help:"Directory to save the downloaded cover image into"`
	JSON     bool   `help:"Print the record as JSON instead of YAML"`
}

// Run executes the fetch command.
func (f *FetchCmd) Run() error {
	orc, store := newOrchestrator()
	store.Add(enrich.Key(f.File), f.File)

	format := extract.Format(f.Format)
	if f.Format == "" {
		format = extract.DetectFormat(f.File)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rec, err := orc.FetchMetadataWithOptions(ctx, f.File, format, enrich.Options{
		ForceRefresh:      f.Refresh,
		SkipCoverDownload: f.NoCover,
	})
	if err != nil {
		return fmt.Errorf("enrichment interrupted: %w", err)
	}

	if f.CoverOut != "" && len(rec.CoverImage) > 0 {
		path, err := fileutil.SaveCover(f.CoverOut, rec.Title, rec.CoverImage, false)
		if err != nil {
			return err
		}
		slog.Info("Cover image saved", "path", path)
	}

	return printDocument(rec, f.JSON)
}

// newOrchestrator assembles the production pipeline: Google Books as
// the primary provider, OpenLibrary filling gaps, both feeding the
// cover gatherer.
func newOrchestrator() (*enrich.Orchestrator, *library.Store) {
	gb := googlebooks.New()
	ol := openlibrary.New()
	store := library.NewStore()
	gatherer := covers.NewGatherer(gb, ol)
	return enrich.New(gb, ol, gatherer, store), store
}

func printDocument(v any, asJSON bool) error {
	if asJSON {
		return printJSON(v)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
