package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smartdesk-ai/go-ticket-backend/internal/classify"
	"github.com/smartdesk-ai/go-ticket-backend/internal/config"
	"github.com/smartdesk-ai/go-ticket-backend/internal/draft"
	httpapi "github.com/smartdesk-ai/go-ticket-backend/internal/http"
	"github.com/smartdesk-ai/go-ticket-backend/internal/observability"
	"github.com/smartdesk-ai/go-ticket-backend/internal/repo"
	"github.com/smartdesk-ai/go-ticket-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X ...cmd.version=v1.2.3".
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	// Storage is mandatory; refuse to start without it.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// The AI ports are optional: a service that cannot classify or draft
	// still accepts and tracks tickets, it just runs degraded. The nil port
	// stays nil for the remainder of the process.
	deps := httpapi.Deps{DB: db}

	if model, err := classify.LoadCSV(cfg.DatasetPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.DatasetPath).
			Msg("classifier dataset unavailable; falling back to default triage labels")
	} else {
		deps.Classifier = model
	}

	if responder, err := draft.NewResponderFromFile(cfg.KnowledgeBase,
		draft.WithTopK(cfg.DraftTopK),
		draft.WithThreshold(cfg.DraftThreshold),
	); err != nil {
		log.Warn().Err(err).Str("path", cfg.KnowledgeBase).
			Msg("knowledge base unavailable; draft replies will report the AI system as offline")
	} else {
		deps.Drafter = responder
	}

	shutdownOTel, err := observability.SetupOTel(cmd.Context(), cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("bye")
	return nil
}

// setupLogging applies the configured global level and, in dev, a human
// readable console writer instead of JSON lines.
func setupLogging(cfg config.Config) {
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
