package application

import (
	"context"

	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/rs/zerolog/log"
)

type SettingsService struct {
	repo domain.SettingsRepository
}

func NewSettingsService(repo domain.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context) (*domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

// Save stores settings. Fields are expected to be validated by the caller;
// a zero PostsPerPage falls back to the default.
func (s *SettingsService) Save(ctx context.Context, settings *domain.Settings) (*domain.Settings, error) {
	if settings.PostsPerPage == 0 {
		settings.PostsPerPage = domain.DefaultSettings().PostsPerPage
	}

	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	log.Info().Str("siteTitle", settings.SiteTitle).Msg("Saved site settings")
	return settings, nil
}
