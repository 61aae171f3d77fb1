// Package config holds process-wide configuration resolved from viper.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// GoogleBooksAPIKey raises the Google Books quota when set.
	GoogleBooksAPIKey string
	// DownloadCovers controls whether the final cover image is fetched
	// and embedded during enrichment.
	DownloadCovers bool
)

// InitConfig populates the globals from viper. Call after viper has
// read its config sources.
func InitConfig() {
	viper.SetDefault("http.timeout", "15s")
	viper.SetDefault("covers.download", true)
	viper.SetDefault("covers.maxcandidates", 8)

	GoogleBooksAPIKey = viper.GetString("googlebooks.apikey")
	DownloadCovers = viper.GetBool("covers.download")
}

// HTTPTimeout is the upper bound on any single external call.
func HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(viper.GetString("http.timeout"))
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// MaxCoverCandidates caps the combined cover candidate list.
func MaxCoverCandidates() int {
	n := viper.GetInt("covers.maxcandidates")
	if n <= 0 {
		return 8
	}
	return n
}

// SetDownloadCovers overrides the cover download flag (CLI flag hook).
func SetDownloadCovers(v bool) {
	DownloadCovers = v
}
