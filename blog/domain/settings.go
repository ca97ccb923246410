package domain

import (
	"context"
	"time"
)

// Settings holds the site and appearance configuration edited from the admin surface.
type Settings struct {
	SiteTitle       string
	SiteDescription string
	ContactEmail    string
	PrimaryColor    string
	PostsPerPage    int
	UpdatedAt       time.Time
}

// DefaultSettings is returned when nothing has been saved yet.
func DefaultSettings() *Settings {
	return &Settings{
		SiteTitle:    "goblog",
		PrimaryColor: "#1f2937",
		PostsPerPage: 6,
	}
}

type SettingsRepository interface {
	// GetSettings returns the stored settings, or DefaultSettings when none exist.
	GetSettings(ctx context.Context) (*Settings, error)

	// SaveSettings overwrites the stored settings.
	SaveSettings(ctx context.Context, s *Settings) error
}
