// Package server wires the HTTP API routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/catastro-tool/internal/core/config"
	"github.com/mohammed-shakir/catastro-tool/internal/core/health"
	middleware "github.com/mohammed-shakir/catastro-tool/internal/core/middleware"
	"github.com/mohammed-shakir/catastro-tool/internal/core/router"
)

type Deps struct {
	Runner router.Runner
	Refs   router.ReferenceLister
	// Layers is nil when overlay analysis is disabled.
	Layers router.LayerCatalog
	// Ortophotos is nil when local rendering is not configured.
	Ortophotos router.OrtophotoGenerator
	Ready      []health.Check
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func Handler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready...))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/catastro/process", router.HandleProcess(logger, d.Runner))
		r.Post("/catastro/batch", router.HandleBatch(logger, d.Runner, cfg.MaxBatch))
		r.Get("/references", router.HandleReferences(d.Refs))
		r.Get("/layers", router.HandleLayers(d.Layers))
		if d.Ortophotos != nil {
			r.Post("/ortophotos/generate", router.HandleOrtophotos(logger, d.Ortophotos))
		}
	})

	files := http.FileServer(http.Dir(cfg.OutputDir))
	r.Handle("/outputs/*", http.StripPrefix("/outputs/", files))
	return r
}

// Run serves until ctx is cancelled. Runs can take minutes, so the write
// timeout is generous.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
