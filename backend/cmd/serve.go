package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/handler"
	"github.com/bluebridge/termsheet-ingest/backend/middleware"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply the database schema before serving")
	rootCmd.AddCommand(serveCmd)
}

// routes are the handlers mounted by newRouter
type routes struct {
	auth       *handler.AuthHandler
	extraction *handler.ExtractionHandler
	products   *handler.ProductHandler
	db         handler.Pinger
}

func newRouter(cfg *config.Config, r routes) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	router.GET("/health", handler.Health(r.db))

	api := router.Group("/api")
	{
		api.GET("/health", handler.Health(r.db))
		api.GET("/version", handler.GetVersion)
		api.POST("/auth/login", r.auth.Login)
		// EventSource cannot send an Authorization header; the random job id is the credential
		api.GET("/extraction-stream/:job_id", r.extraction.Stream)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", r.auth.GetCurrentUser)
		protected.POST("/upload-termsheet", r.extraction.Upload)
		protected.POST("/upload-termsheet-async", r.extraction.UploadAsync)
		protected.GET("/products", r.products.List)
		protected.GET("/products/:isin", r.products.Get)
		protected.GET("/products/:isin/extractions", r.products.Extractions)
		protected.PATCH("/products/:isin/approve", r.products.Approve)
	}

	return router
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	if serveMigrate {
		if err := comps.repo.Migrate(ctx); err != nil {
			return err
		}
	}

	slog.Info("services initialized", "extractor", cfg.Extractor.Mode, "llm_model", cfg.LLM.Model, "bucket", cfg.Minio.Bucket)

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(cfg, routes{
		auth:       handler.NewAuthHandler(cfg),
		extraction: handler.NewExtractionHandler(comps.orchestrator, service.NewJobStore(), cfg.MaxUploadBytes()),
		products:   handler.NewProductHandler(comps.repo),
		db:         comps.repo,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		// no WriteTimeout: sync uploads and extraction streams last as long as the LLM call
		IdleTimeout: 120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, failed := <-serveErr:
		if failed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited gracefully")
	return nil
}
