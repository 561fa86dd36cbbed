// Package server assembles the HTTP surface and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecovector/mosquito-atlas/internal/core/health"
	"github.com/ecovector/mosquito-atlas/internal/core/middleware"
	"github.com/ecovector/mosquito-atlas/internal/core/router"
)

// NewRouter builds the full route table. Split from Run so tests can drive
// the router without a listener.
func NewRouter(deps router.Deps, readiness health.ReadinessReporter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(readiness))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/api/v1/filter-options", router.HandleFilterOptions(deps))
	r.Get("/api/v1/layers/{layer}", router.HandleGeoLayer(deps))
	r.Post("/api/v1/observations", router.HandleCreateObservation(deps))
	r.Get("/api/v1/observations", router.HandleListObservations(deps))

	return r
}

// Run serves until ctx is canceled, then drains with a bounded shutdown.
func Run(ctx context.Context, addr string, deps router.Deps, readiness health.ReadinessReporter) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps, readiness),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("http listen", "addr", addr)
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
