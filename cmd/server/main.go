package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/api"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/engine"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider/memory"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider/rest"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider/sqlite"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/kgx.yaml", "Path to YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv file not loaded", "path", *envFile, "err", err)
	}

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

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := provider.NewRegistry()
	reg.Register("memory", memory.Open)
	reg.Register("sqlite", sqlite.Open)
	reg.Register("rest", rest.Open)

	p, err := reg.Open(cfg.Provider)
	if err != nil {
		slog.Error("failed to open provider", "kind", cfg.Provider.Kind, "err", err)
		os.Exit(1)
	}
	defer p.Close()
	p = provider.Instrumented(p)
	slog.Info("provider ready", "kind", cfg.Provider.Kind, "available", reg.Kinds())

	// ── Session ───────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := engine.New(cfg, p, logger)
	if err != nil {
		slog.Error("failed to create session", "err", err)
		os.Exit(1)
	}
	sess.Start(ctx)

	go func() {
		bctx, bcancel := context.WithTimeout(ctx, 30*time.Second)
		defer bcancel()
		if err := sess.Bootstrap(bctx); err != nil {
			slog.Warn("bootstrap incomplete; graph starts empty", "err", err)
		}
	}()

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if newCfg.Provider != cfg.Provider {
			slog.Warn("provider settings changed; restart to apply", "kind", newCfg.Provider.Kind)
		}
		rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
		defer rcancel()
		if err := sess.Reconfigure(rctx, newCfg); err != nil {
			slog.Warn("hot-reload skipped: session rejected config", "err", err)
			return
		}
		slog.Info("config hot-reloaded")
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(sess, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr, "session_id", sess.ID())
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
