package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// FleetFile is the on-disk shape of a fleet-wide scraper config file:
// a set of named tunable overlays that a scraper record's Config can be
// seeded from at creation time. Individual fields are then still mutable
// per-scraper via the Queue Mutation API and direct record edits.
type FleetFile struct {
	Defaults models.ScraperConfig            `yaml:"defaults"`
	Overlays map[string]models.ScraperConfig `yaml:"overlays"`
}

// LoadFleetFile reads a YAML fleet config file, in the same
// read-then-yaml.Unmarshal shape used across this codebase's config
// loaders. A missing file is not an error — the caller falls back to
// models.DefaultScraperConfig().
func LoadFleetFile(path string) (*FleetFile, error) {
	file, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &FleetFile{Defaults: models.DefaultScraperConfig()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet config file: %w", err)
	}

	f := &FleetFile{}
	if err := yaml.Unmarshal(file, f); err != nil {
		return nil, fmt.Errorf("failed to parse fleet config: %w", err)
	}

	if f.Defaults.PostsLimit == 0 {
		f.Defaults = mergeDefaults(f.Defaults)
	}

	return f, nil
}

// ConfigFor resolves the effective ScraperConfig for a named scraper: the
// fleet defaults overlaid by any per-scraper section with a matching name.
func (f *FleetFile) ConfigFor(scraperID string) models.ScraperConfig {
	cfg := f.Defaults
	if overlay, ok := f.Overlays[scraperID]; ok {
		cfg = applyOverlay(cfg, overlay)
	}
	return cfg
}

func mergeDefaults(partial models.ScraperConfig) models.ScraperConfig {
	base := models.DefaultScraperConfig()
	return applyOverlay(base, partial)
}

// applyOverlay copies any non-zero field of overlay onto base, matching the
// setDefaults()-style field-by-field merge pattern used elsewhere in this
// codebase's config loaders. Three fields differ: MoreCommentsLimit is
// always taken from overlay, zero included, and VerifyBeforeMarking and
// AutoRestart are OR-ed, so an overlay can turn them on but not off.
func applyOverlay(base, overlay models.ScraperConfig) models.ScraperConfig {
	if overlay.PostsLimit != 0 {
		base.PostsLimit = overlay.PostsLimit
	}
	if len(overlay.SortingMethods) != 0 {
		base.SortingMethods = overlay.SortingMethods
	}
	if len(overlay.SortLimits) != 0 {
		base.SortLimits = overlay.SortLimits
	}
	if overlay.IntervalSeconds != 0 {
		base.IntervalSeconds = overlay.IntervalSeconds
	}
	if overlay.RotationDelaySeconds != 0 {
		base.RotationDelaySeconds = overlay.RotationDelaySeconds
	}
	if overlay.CommentBatch != 0 {
		base.CommentBatch = overlay.CommentBatch
	}
	if overlay.MaxCommentDepth != 0 {
		base.MaxCommentDepth = overlay.MaxCommentDepth
	}
	if overlay.Retry.MaxRetries != 0 {
		base.Retry = overlay.Retry
	}
	if overlay.TopTimeFilter != "" {
		base.TopTimeFilter = overlay.TopTimeFilter
	}
	if overlay.InitialTopTimeFilter != "" {
		base.InitialTopTimeFilter = overlay.InitialTopTimeFilter
	}
	base.MoreCommentsLimit = overlay.MoreCommentsLimit
	base.VerifyBeforeMarking = overlay.VerifyBeforeMarking || base.VerifyBeforeMarking
	base.AutoRestart = overlay.AutoRestart || base.AutoRestart
	return base
}
