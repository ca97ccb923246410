package rest

import (
	"github.com/dfryer1193/goblog/blog/application"
	"github.com/dfryer1193/goblog/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Posts    *application.PostService
	Queries  *application.PostQueryService
	Settings *application.SettingsService
	Auth     middleware.Authenticator
	SiteURL  string
}

func NewApi(router *gin.Engine, deps Deps) {
	posts := NewPostHandler(deps.Posts, deps.Queries)
	settings := NewSettingsHandler(deps.Settings)
	sitemap := NewSitemapHandler(deps.Posts, deps.SiteURL)

	public := router.Group("/api", middleware.OptionalAuth(deps.Auth))
	{
		public.GET("/posts", posts.List)
		public.GET("/posts/:id", posts.Get)
		public.GET("/posts/slug/:slug", posts.GetBySlug)
		public.POST("/posts/:id/views", posts.IncrementView)
		public.GET("/settings", settings.Get)
	}

	admin := router.Group("/api/admin", middleware.RequireAuth(deps.Auth))
	{
		admin.GET("/posts", posts.ListAdmin)
		admin.POST("/posts", posts.Create)
		admin.PUT("/posts/:id", posts.Update)
		admin.DELETE("/posts/:id", posts.Delete)
		admin.PUT("/settings", settings.Save)
	}

	router.GET("/sitemap.xml", sitemap.Get)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
