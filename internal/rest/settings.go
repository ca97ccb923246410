package rest

import (
	"net/http"

	"github.com/dfryer1193/goblog/api"
	"github.com/dfryer1193/goblog/blog/application"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings *application.SettingsService
}

func NewSettingsHandler(settings *application.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toAPISettings(settings), false)
}

func (h *SettingsHandler) Save(c *gin.Context) {
	var req api.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("", "invalid settings: %v", err))
		return
	}

	saved, err := h.settings.Save(c.Request.Context(), &domain.Settings{
		SiteTitle:       req.SiteTitle,
		SiteDescription: req.SiteDescription,
		ContactEmail:    req.ContactEmail,
		PrimaryColor:    req.PrimaryColor,
		PostsPerPage:    req.PostsPerPage,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toAPISettings(saved), false)
}

func toAPISettings(s *domain.Settings) api.Settings {
	out := api.Settings{
		SiteTitle:       s.SiteTitle,
		SiteDescription: s.SiteDescription,
		ContactEmail:    s.ContactEmail,
		PrimaryColor:    s.PrimaryColor,
		PostsPerPage:    s.PostsPerPage,
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = s.UpdatedAt.UTC().Format(domain.TimestampLayout)
	}
	return out
}
