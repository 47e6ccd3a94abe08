package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/scenegraph/internal/api"
	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/session"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	cfgPath := flag.String("config", "configs/scenegraph.yaml", "Path to scenegraph YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	if *addr == "" {
		*addr = cfg.Server.Addr
	}

	// ── Kind registry ─────────────────────────────────────────────────────────
	kinds, err := kind.FromConfig(cfg.Kinds, cfg.Merge.StrictKinds)
	if err != nil {
		slog.Error("failed to build kind registry", "err", err)
		os.Exit(1)
	}
	slog.Info("kind registry built", "kinds", len(kinds.Tags()), "strict", kinds.Strict())

	// ── Session ───────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(ctx, cfg.Session, kinds, session.WithLogger(logger))

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := sess.ApplyConfig(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(sess, loader),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr, "session", sess.ID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	sess.Shutdown()
	cancel()
	slog.Info("goodbye")
}
