package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/pipeline"
	"github.com/mohammed-shakir/hexscan/internal/planner"
	"github.com/mohammed-shakir/hexscan/internal/scan"
	"github.com/mohammed-shakir/hexscan/internal/session"
)

// Scanner runs scans on behalf of HTTP callers.
type Scanner interface {
	ScanSteps(ctx context.Context, center model.Coordinate, steps int) (pipeline.Result, error)
	Reset()
	Steps() int
}

// CellsFunc annotates plan points with spatial cells; may be nil.
type CellsFunc func(plan model.ScanPlan) ([]string, error)

type ScanRequest struct {
	Center model.Coordinate
	Steps  int
}

type failure struct {
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable"`
	Center    *model.Coordinate `json:"center,omitempty"`
	Epoch     uint64            `json:"epoch,omitempty"`
}

// HandleScan validates the center and runs a superseding scan.
func HandleScan(logger *slog.Logger, s Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/scan", sw.code, time.Since(start).Seconds())
		}()

		req, err := ParseScanRequest(r, s.Steps())
		if err != nil {
			writeJSON(sw, http.StatusBadRequest, failure{Error: err.Error()})
			return
		}

		res, err := s.ScanSteps(r.Context(), req.Center, req.Steps)
		var se *scan.Error
		switch {
		case err == nil:
			writeJSON(sw, http.StatusOK, res)
		case errors.Is(err, pipeline.ErrStaleEpoch):
			writeJSON(sw, http.StatusConflict, failure{Error: "superseded by a newer scan", Epoch: res.Epoch})
		case errors.Is(err, session.ErrClosed):
			writeJSON(sw, http.StatusServiceUnavailable, failure{Error: err.Error()})
		case errors.As(err, &se):
			logger.WarnContext(r.Context(), "scan failed", "center", se.Center.String(), "retryable", se.Retryable(), "err", err)
			c := se.Center
			writeJSON(sw, http.StatusBadGateway, failure{Error: err.Error(), Retryable: se.Retryable(), Center: &c})
		default:
			logger.ErrorContext(r.Context(), "scan failed", "err", err)
			writeJSON(sw, http.StatusInternalServerError, failure{Error: err.Error()})
		}
	}
}

// HandlePlan renders the scan plan around a center as GeoJSON.
func HandlePlan(p *planner.Planner, cells CellsFunc, defSteps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/plan", sw.code, time.Since(start).Seconds())
		}()

		req, err := ParseScanRequest(r, defSteps)
		if err != nil {
			writeJSON(sw, http.StatusBadRequest, failure{Error: err.Error()})
			return
		}
		plan, err := p.Plan(req.Center, req.Steps)
		if err != nil {
			writeJSON(sw, http.StatusBadRequest, failure{Error: err.Error()})
			return
		}
		var cs []string
		if cells != nil {
			if cs, err = cells(plan); err != nil {
				writeJSON(sw, http.StatusInternalServerError, failure{Error: err.Error()})
				return
			}
		}
		b, err := planner.GeoJSON(plan, cs)
		if err != nil {
			writeJSON(sw, http.StatusInternalServerError, failure{Error: err.Error()})
			return
		}
		sw.Header().Set("Content-Type", "application/geo+json")
		sw.WriteHeader(http.StatusOK)
		_, _ = sw.Write(b)
	}
}

// HandleReset forgets every reported entity so the next scan reports them again.
func HandleReset(s Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.Reset()
		w.WriteHeader(http.StatusNoContent)
		observability.ObserveHTTP(r.Method, "/session/reset", http.StatusNoContent, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ParseScanRequest reads lat, lon and the optional steps query parameters.
func ParseScanRequest(r *http.Request, defSteps int) (ScanRequest, error) {
	q := r.URL.Query()
	rawLat := strings.TrimSpace(q.Get("lat"))
	rawLon := strings.TrimSpace(q.Get("lon"))
	if rawLat == "" || rawLon == "" {
		return ScanRequest{}, errors.New("missing required parameters: lat and lon")
	}
	lat, err := parseFloat(rawLat)
	if err != nil {
		return ScanRequest{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := parseFloat(rawLon)
	if err != nil {
		return ScanRequest{}, fmt.Errorf("lon: %w", err)
	}
	c := model.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return ScanRequest{}, errors.New("lat must be in [-90,90] and lon in [-180,180]")
	}

	steps := defSteps
	if raw := strings.TrimSpace(q.Get("steps")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ScanRequest{}, fmt.Errorf("steps: %w", err)
		}
		steps = n
	}
	if steps < 0 || steps > planner.MaxSteps {
		return ScanRequest{}, fmt.Errorf("steps must be in [0,%d]", planner.MaxSteps)
	}
	return ScanRequest{Center: c, Steps: steps}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("must be finite")
	}
	return f, nil
}
