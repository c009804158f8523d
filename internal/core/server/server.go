package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/hexscan/internal/core/health"
	middleware "github.com/mohammed-shakir/hexscan/internal/core/middleware"
	"github.com/mohammed-shakir/hexscan/internal/core/router"
	"github.com/mohammed-shakir/hexscan/internal/planner"
)

type Deps struct {
	Logger  *slog.Logger
	Scanner router.Scanner
	Planner *planner.Planner
	Cells   router.CellsFunc
	// Metrics serves /metrics; defaults to the global Prometheus registry.
	Metrics http.Handler
	// Live is the WebSocket viewer endpoint; /ws is not mounted when nil.
	Live   http.Handler
	Checks []health.Check
}

// NewHandler wires every route of the service.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	p := d.Planner
	if p == nil {
		p = planner.New(planner.DefaultStepDistance)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, d.Checks...))
	r.Get("/metrics", metrics.ServeHTTP)
	r.Get("/plan", router.HandlePlan(p, d.Cells, d.Scanner.Steps()))
	r.Post("/scan", router.HandleScan(logger, d.Scanner))
	r.Post("/session/reset", router.HandleReset(d.Scanner))
	if d.Live != nil {
		r.Get("/ws", d.Live.ServeHTTP)
	}
	return r
}

// Run serves h on addr until ctx is canceled.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a full 12-ring scan makes hundreds of sequential remote calls
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
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
