// Command ksc-server is the ksc compile daemon. It loads a YAML
// configuration file, opens the PostgreSQL job history and audit log pool
// and the SQLite build cache, exposes a REST API over HTTP, streams build
// status over WebSocket, and shuts down gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kernelscript/ksc/internal/buildaudit"
	"github.com/kernelscript/ksc/internal/cache"
	"github.com/kernelscript/ksc/internal/config"
	"github.com/kernelscript/ksc/internal/jobstore"
	"github.com/kernelscript/ksc/internal/server/rest"
	"github.com/kernelscript/ksc/internal/server/websocket"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "ksc-server.yaml", "path to the ksc-server YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("ksc-server starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("cache_path", cfg.CachePath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL job history + audit log ───────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.JobStoreDSN)
	if err != nil {
		logger.Error("failed to open jobstore pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobs, err := jobstore.Open(ctx, cfg.JobStoreDSN, jobstore.DefaultBatchSize, jobstore.DefaultFlushInterval)
	if err != nil {
		logger.Error("failed to open jobstore", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobs.Close(context.Background())
	logger.Info("jobstore connected")

	audit := buildaudit.New(pool)

	// ── SQLite build cache ────────────────────────────────────────────────────
	buildCache, err := cache.Open(cfg.CachePath, cfg.MaxCacheEntries)
	if err != nil {
		logger.Error("failed to open build cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer buildCache.Close()
	logger.Info("build cache opened", slog.String("path", cfg.CachePath))

	// ── WebSocket broadcaster ─────────────────────────────────────────────────
	broadcaster := websocket.NewBroadcaster(logger, 64)
	defer broadcaster.Close()
	wsHandler := websocket.NewHandler(broadcaster, logger, 10*time.Second)

	// ── REST API server ───────────────────────────────────────────────────────
	var pubKey *rsa.PublicKey
	if cfg.JWTPublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.JWTPublicKeyPath)
		if err != nil {
			logger.Error("failed to read JWT public key", slog.Any("error", err))
			os.Exit(1)
		}
		pubKey, err = rest.ParseRSAPublicKey(pem)
		if err != nil {
			logger.Error("failed to parse JWT public key", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("JWT validation enabled")
	} else {
		logger.Warn("jwt_public_key_path not configured; REST API authentication disabled (dev mode)")
	}

	restSrv := rest.NewServer(jobs, audit, buildCache, broadcaster)
	mux := http.NewServeMux()
	mux.Handle("/", rest.NewRouter(restSrv, pubKey))
	mux.Handle("/ws", wsHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── Start server ──────────────────────────────────────────────────────────
	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(httpErrCh)
	}()

	// ── Wait for shutdown signal or fatal error ────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("HTTP server error", slog.Any("error", err))
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("ksc-server exited cleanly")
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
