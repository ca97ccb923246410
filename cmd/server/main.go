package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfryer1193/goblog/blog/application"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/blog/persistence"
	"github.com/dfryer1193/goblog/internal/middleware"
	"github.com/dfryer1193/goblog/internal/rest"
	"github.com/dfryer1193/goblog/shared/cache"
	"github.com/dfryer1193/goblog/shared/config"
	"github.com/dfryer1193/goblog/shared/dynamo"
	"github.com/dfryer1193/goblog/shared/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const (
	shutdownTimeout = 5 * time.Second
	startupTimeout  = 3 * time.Minute
	adminPrincipal  = "admin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Log)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	store, err := dynamo.NewClient(startupCtx, &cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store client")
	}

	if cfg.Store.CreateTables {
		if err := store.EnsureTables(startupCtx); err != nil {
			log.Fatal().Err(err).Msg("Failed to provision tables")
		}
	}

	postRepo := persistence.NewPostRepository(store.API(), store.PostsTable())
	settingsRepo := persistence.NewSettingsRepository(store.API(), store.SettingsTable())

	postCache := cache.NewLRU[[]*domain.Post](cfg.Cache.Size, cfg.Cache.TTL)
	queries := application.NewPostQueryService(postRepo, postCache, settingsRepo)
	postService := application.NewPostService(postRepo, queries)
	settingsService := application.NewSettingsService(settingsRepo)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.LoggingMiddleware())
	engine.Use(gin.CustomRecovery(middleware.HandlePanics()))

	rest.NewApi(engine, rest.Deps{
		Posts:    postService,
		Queries:  queries,
		Settings: settingsService,
		Auth:     middleware.NewStaticTokenAuthenticator(cfg.Auth.AdminToken, adminPrincipal),
		SiteURL:  cfg.Server.SiteURL,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(engine)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}
