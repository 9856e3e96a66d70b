package pipeline

import (
	"time"

	"github.com/brettboylen/linkedin-agent/models"
)

// Config controls pacing and where the controller points the browser
type Config struct {
	SiteURL           string
	NavigationTimeout time.Duration

	PostLoadDelay     Range
	PreScrapeDelay    Range
	PostAnalysisDelay Range
	PrePostDelay      Range

	BetweenTargetsDelay Range
	AfterSkipDelay      Range

	// Defaults are used when no settings have been persisted yet
	Defaults models.Settings
}

// DefaultConfig returns the stock pacing
func DefaultConfig() Config {
	return Config{
		SiteURL:             "https://www.linkedin.com",
		NavigationTimeout:   25 * time.Second,
		PostLoadDelay:       Range{Min: 3 * time.Second, Max: 6 * time.Second},
		PreScrapeDelay:      Range{Min: 1 * time.Second, Max: 2 * time.Second},
		PostAnalysisDelay:   Range{Min: 500 * time.Millisecond, Max: 3 * time.Second},
		PrePostDelay:        Range{Min: 5 * time.Second, Max: 10 * time.Second},
		BetweenTargetsDelay: Range{Min: 60 * time.Second, Max: 120 * time.Second},
		AfterSkipDelay:      Range{Min: 1 * time.Second, Max: 3 * time.Second},
	}
}
