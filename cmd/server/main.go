package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/sopmaster/internal/api"
	"github.com/dgallion1/sopmaster/internal/blobstore"
	"github.com/dgallion1/sopmaster/internal/caption"
	"github.com/dgallion1/sopmaster/internal/config"
	"github.com/dgallion1/sopmaster/internal/editor"
	"github.com/dgallion1/sopmaster/internal/export"
	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/kv"
	"github.com/dgallion1/sopmaster/internal/lifecycle"
	"github.com/dgallion1/sopmaster/internal/logging"
	"github.com/dgallion1/sopmaster/internal/pathstore"
	"github.com/dgallion1/sopmaster/internal/persist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log, logCloser, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Error("open log", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	store, err := openStore(cfg)
	if err != nil {
		log.Error("open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore the saved document.
	blobs := blobstore.New()
	projects := persist.New(store, blobs, log, persist.Options{
		PersistImageData: cfg.PersistImageData,
		AIEnabledDefault: cfg.AIEnabledDefault,
	})
	doc, aiEnabled := projects.Load(ctx)
	session := editor.NewSession(doc, aiEnabled, blobs, projects, log)

	captioner, stats, closeCaptioner := newCaptioner(cfg, log)
	defer closeCaptioner()

	ctrl := lifecycle.New(session, captioner, lifecycle.Config{
		MaxImageBytes:  cfg.MaxImageBytes,
		CaptionTimeout: cfg.CaptionTimeout,
	}, log)
	exporter := export.New(blobs, export.Config{
		Width:       cfg.ExportWidth,
		Quality:     cfg.ExportQuality,
		Policy:      imaging.ParsePolicy(cfg.ResamplePolicy),
		Concurrency: cfg.ExportConcurrency,
	}, log)

	srv := api.NewServer(api.Deps{
		Session:   session,
		Lifecycle: ctrl,
		Exporter:  exporter,
		Projects:  projects,
		Stats:     stats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Event streams stay open, so responses have no write deadline.
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		ctrl.Close()
	}()

	log.Info("starting sopmaster",
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"caption_provider", cfg.CaptionProvider,
		"steps", len(doc.Steps),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (kv.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return kv.OpenSQLite(cfg.SQLitePath)
	case "pathstore":
		ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		return kv.NewPathstore(ps, cfg.PathstorePrefix), nil
	case "memory":
		return kv.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// newCaptioner builds the configured provider behind retries and a circuit
// breaker. With no provider it returns caption.Unavailable and nil stats.
func newCaptioner(cfg config.Config, log *slog.Logger) (caption.Captioner, *caption.Stats, func()) {
	var (
		provider caption.Captioner
		closeFn  func()
	)
	switch cfg.CaptionProvider {
	case "anthropic":
		c := caption.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		provider, closeFn = c, c.Close
	case "gemini":
		c := caption.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		provider, closeFn = c, c.Close
	default:
		return caption.Unavailable{}, nil, func() {}
	}

	stats := caption.NewStats(time.Hour)
	resilient := caption.NewResilient(provider, caption.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
	}, stats, log)
	return resilient, stats, closeFn
}
