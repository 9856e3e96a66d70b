package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/models"
)

// LoadSettings reads the persisted settings, falling back to defaults when none are stored
func LoadSettings(ctx context.Context, store db.Store, defaults models.Settings) (models.Settings, error) {
	var settings models.Settings
	ok, err := store.Get(ctx, db.KeySettings, &settings)
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if !ok {
		return defaults, nil
	}
	return settings, nil
}

// SaveSettings persists settings after normalizing the target list
func SaveSettings(ctx context.Context, store db.Store, settings models.Settings) error {
	settings.TargetProfiles = NormalizeTargets(settings.TargetProfiles)
	if err := store.Set(ctx, db.KeySettings, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// EnsureSettings seeds the store with defaults on first boot. It reports
// whether anything was written.
func EnsureSettings(ctx context.Context, store db.Store, defaults models.Settings) (bool, error) {
	var existing models.Settings
	ok, err := store.Get(ctx, db.KeySettings, &existing)
	if err != nil {
		return false, fmt.Errorf("failed to load settings: %w", err)
	}
	if ok {
		return false, nil
	}
	if err := SaveSettings(ctx, store, defaults); err != nil {
		return false, err
	}
	return true, nil
}

// NormalizeTargets trims entries and drops empty ones, keeping order
func NormalizeTargets(targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func validateSettings(settings models.Settings) error {
	if strings.TrimSpace(settings.GeminiAPIKey) == "" {
		return ErrMissingCredential
	}
	if len(NormalizeTargets(settings.TargetProfiles)) == 0 {
		return ErrNoTargets
	}
	return nil
}
