// Command browsecore-server runs the HTTP surface for the Intelligent
// Fetch Pipeline: a single CoreContext wiring every pipeline collaborator,
// exposed over the six spec §6 operations via a Gin router.
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

	"github.com/fetchkit/browsecore/api"
	"github.com/fetchkit/browsecore/config"
	"github.com/fetchkit/browsecore/internal/pipeline"
)

func main() {
	cfg := config.Load()
	initLogger(cfg.Log)

	slog.Info("browsecore starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"store", cfg.Store.Path,
	)

	ctx := context.Background()
	core, err := pipeline.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	if core.Browser == nil {
		slog.Warn("starting with the playwright tier disabled")
	}

	startTime := time.Now()
	router := api.NewRouter(core, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("browsecore listening", "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// initLogger configures the process-wide slog default handler from
// cfg.Level ("debug"|"warn"|"error", default info) and cfg.Format
// ("json"|"text", default json).
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
