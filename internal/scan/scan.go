// Package scan runs one scan: plan the rings around a center, query every
// point in order through a single fetcher and concatenate the results.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
	"github.com/mohammed-shakir/hexscan/internal/planner"
)

// Error reports an aborted scan. Center is the original request center so the
// caller can re-issue the whole scan.
type Error struct {
	Center model.Coordinate
	Index  int
	Point  model.Coordinate
	Err    error
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("scan around %s: %v", e.Center, e.Err)
	}
	return fmt.Sprintf("scan around %s: point %d (%s): %v", e.Center, e.Index, e.Point, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether re-running the scan from Center may succeed.
func (e *Error) Retryable() bool {
	return fetch.IsAuth(e.Err) || fetch.IsNetwork(e.Err)
}

// Aggregator fetches every point of a scan plan in order and concatenates the results.
type Aggregator struct {
	planner *planner.Planner
	log     *slog.Logger
}

// NewAggregator uses the default 200 m planner when p is nil.
func NewAggregator(p *planner.Planner, log *slog.Logger) *Aggregator {
	if p == nil {
		p = planner.New(planner.DefaultStepDistance)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{planner: p, log: log}
}

func (a *Aggregator) Planner() *planner.Planner { return a.planner }

// Scan fetches every plan point strictly in plan order. Any failure aborts the
// scan and no partial result is returned.
func (a *Aggregator) Scan(ctx context.Context, center model.Coordinate, steps int, f fetch.Fetcher) ([]model.Entity, error) {
	ctx, span := observability.StartSpan(ctx, "scan",
		attribute.Float64("scan.center.lat", center.Lat),
		attribute.Float64("scan.center.lon", center.Lon),
		attribute.Int("scan.steps", steps),
	)
	defer span.End()

	plan, err := a.planner.Plan(center, steps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan")
		return nil, &Error{Center: center, Index: -1, Err: err}
	}
	span.SetAttributes(attribute.Int("scan.points", len(plan)))

	var out []model.Entity
	for i, pt := range plan {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, &Error{Center: center, Index: i, Point: pt, Err: err}
		}
		got, err := a.fetchPoint(ctx, i, pt, f)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch")
			a.log.WarnContext(ctx, "scan aborted",
				"center", center.String(), "index", i, "point", pt.String(), "err", err)
			return nil, &Error{Center: center, Index: i, Point: pt, Err: err}
		}
		out = append(out, got...)
	}
	observability.AddScanPoints(len(plan))
	span.SetAttributes(attribute.Int("scan.entities", len(out)))
	return out, nil
}

func (a *Aggregator) fetchPoint(ctx context.Context, i int, pt model.Coordinate, f fetch.Fetcher) ([]model.Entity, error) {
	ctx, span := observability.StartSpan(ctx, "scan.point",
		attribute.Int("scan.index", i),
		attribute.Int("scan.layer", planner.LayerOf(i)),
	)
	defer span.End()

	start := time.Now()
	got, err := f.Fetch(ctx, pt)
	observability.ObserveFetch(fetchOutcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch")
		return nil, err
	}
	span.SetAttributes(attribute.Int("scan.point.entities", len(got)))
	return got, nil
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case fetch.IsAuth(err):
		return "auth_error"
	case fetch.IsNetwork(err):
		return "network_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
