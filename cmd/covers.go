package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
)

// CoversCmd lists candidate cover images for the given search terms.
type CoversCmd struct {
	Title  string `help:"Book title to search covers for"`
	Author string `help:"Author name to narrow the search"`
	ISBN   string `help:"ISBN for a direct edition match"`
	JSON   bool   `help:"Print candidates as JSON instead of YAML"`
}

// coverListing is the printable projection of a candidate; thumbnail
// bytes stay out of the terminal.
type coverListing struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Thumbnail   string `json:"thumbnail_url" yaml:"thumbnail_url"`
	FullSize    string `json:"full_size_url" yaml:"full_size_url"`
	PreviewSize int    `json:"preview_bytes" yaml:"preview_bytes"`
}

// Run executes the covers command.
func (c *CoversCmd) Run() error {
	if c.Title == "" && c.Author == "" && c.ISBN == "" {
		return fmt.Errorf("at least one of --title, --author or --isbn is required")
	}

	orc, _ := newOrchestrator()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	candidates := orc.FetchCoverOptions(ctx, c.Title, c.Author, c.ISBN)

	listings := make([]coverListing, 0, len(candidates))
	for _, cand := range candidates {
		listings = append(listings, coverListing{
			ID:          cand.ID,
			Label:       cand.Label,
			Thumbnail:   cand.ThumbnailURL,
			FullSize:    cand.FullSizeURL,
			PreviewSize: len(cand.Thumbnail),
		})
	}

	return printDocument(listings, c.JSON)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
