// Package session owns the per-user scan lifecycle: the dedup memory, scan
// epochs and cancellation of superseded scans.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/dedup"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
	"github.com/mohammed-shakir/hexscan/internal/filter"
	"github.com/mohammed-shakir/hexscan/internal/logger"
	"github.com/mohammed-shakir/hexscan/internal/pipeline"
	"github.com/mohammed-shakir/hexscan/internal/scan"
	"github.com/mohammed-shakir/hexscan/internal/sink"
)

var ErrClosed = errors.New("session: closed")

// Config holds the ring count and dedup bound; DedupCapacity <= 0 is unbounded.
type Config struct {
	Steps         int
	DedupCapacity int
}

// Deps are the collaborators of a session. Only Factory is required.
type Deps struct {
	Aggregator *scan.Aggregator
	Factory    fetch.Factory
	Policy     filter.Policy
	Sink       sink.Sink
	Limiter    *rate.Limiter
	CellOf     pipeline.CellFunc
	Logger     *slog.Logger
	Now        func() time.Time
	// OnError receives failures of asynchronous scans; defaults to logging.
	OnError func(epoch uint64, err error)
}

// Session is one user's scan lifecycle and dedup memory.
type Session struct {
	id       string
	cfg      Config
	agg      *scan.Aggregator
	factory  fetch.Factory
	policy   filter.Policy
	limiter  *rate.Limiter
	pipe     *pipeline.Pipeline
	log      *slog.Logger
	onError  func(uint64, error)
	base     context.Context
	shutdown context.CancelFunc

	mu        sync.Mutex
	closed    bool
	cancelCur context.CancelFunc
	wg        sync.WaitGroup
}

// New starts a session with an empty dedup store.
func New(cfg Config, deps Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	agg := deps.Aggregator
	if agg == nil {
		agg = scan.NewAggregator(nil, log)
	}
	policy := deps.Policy
	if policy == nil {
		policy = filter.AllowAll()
	}
	base, shutdown := context.WithCancel(context.Background())
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		agg:      agg,
		factory:  deps.Factory,
		policy:   policy,
		limiter:  deps.Limiter,
		log:      log,
		onError:  deps.OnError,
		base:     base,
		shutdown: shutdown,
	}
	s.pipe = pipeline.New(policy, dedup.New(cfg.DedupCapacity), deps.Sink, pipeline.Options{
		Now:    deps.Now,
		CellOf: deps.CellOf,
	})
	if s.onError == nil {
		s.onError = func(epoch uint64, err error) {
			s.log.ErrorContext(logger.WithScanEpoch(s.ctx(s.base), epoch), "background scan failed", "err", err)
		}
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Steps() int { return s.cfg.Steps }

func (s *Session) ctx(parent context.Context) context.Context {
	return logger.WithComponent(logger.WithSessionID(parent, s.id), "session")
}

// Scan runs a scan with the configured number of rings and waits for it.
func (s *Session) Scan(ctx context.Context, center model.Coordinate) (pipeline.Result, error) {
	return s.ScanSteps(ctx, center, s.cfg.Steps)
}

// ScanSteps supersedes any in-flight scan and runs a new one synchronously.
func (s *Session) ScanSteps(ctx context.Context, center model.Coordinate, steps int) (pipeline.Result, error) {
	epoch, runCtx, done, err := s.begin(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer done()
	return s.run(runCtx, epoch, center, steps)
}

// Trigger starts a superseding scan in the background and returns its epoch.
// Failures other than supersession go to OnError.
func (s *Session) Trigger(center model.Coordinate) uint64 {
	epoch, runCtx, done, err := s.begin(s.base)
	if err != nil {
		s.onError(0, err)
		return 0
	}
	go func() {
		defer done()
		if _, err := s.run(runCtx, epoch, center, s.cfg.Steps); err != nil && !errors.Is(err, pipeline.ErrStaleEpoch) {
			s.onError(epoch, err)
		}
	}()
	return epoch
}

func (s *Session) begin(parent context.Context) (uint64, context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, nil, ErrClosed
	}
	if s.cancelCur != nil {
		s.cancelCur()
	}
	epoch := s.pipe.NextEpoch()
	runCtx, cancel := context.WithCancel(s.ctx(parent))
	stop := context.AfterFunc(s.base, cancel)
	s.cancelCur = cancel
	s.wg.Add(1)
	return epoch, logger.WithScanEpoch(runCtx, epoch), func() {
		stop()
		cancel()
		s.wg.Done()
	}, nil
}

func (s *Session) run(ctx context.Context, epoch uint64, center model.Coordinate, steps int) (res pipeline.Result, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		observability.ObserveScan(outcome, time.Since(start).Seconds())
	}()

	ents, err := s.fetchAll(ctx, center, steps)
	if err != nil {
		if s.pipe.Epoch() != epoch {
			outcome = "stale"
			return pipeline.Result{Epoch: epoch}, pipeline.ErrStaleEpoch
		}
		outcome = "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "canceled"
		}
		return pipeline.Result{Epoch: epoch}, err
	}

	if r, ok := s.policy.(filter.Refresher); ok {
		if rerr := r.Refresh(ctx); rerr != nil {
			s.log.WarnContext(ctx, "filter policy refresh failed; using last snapshot", "err", rerr)
		}
	}

	res, err = s.pipe.Process(ctx, epoch, ents)
	switch {
	case errors.Is(err, pipeline.ErrStaleEpoch):
		outcome = "stale"
	case err != nil:
		outcome = "canceled"
	default:
		s.log.InfoContext(ctx, "scan complete",
			"center", center.String(),
			"steps", steps,
			"received", res.Received,
			"filtered", res.Filtered,
			"duplicates", res.Duplicates,
			"emitted", res.Emitted,
			"duration", time.Since(start))
	}
	return res, err
}

func (s *Session) fetchAll(ctx context.Context, center model.Coordinate, steps int) ([]model.Entity, error) {
	if s.factory == nil {
		return nil, &scan.Error{Center: center, Index: -1, Err: errors.New("no fetcher configured")}
	}
	h, err := s.factory.Open(ctx)
	if err != nil {
		return nil, &scan.Error{Center: center, Index: -1, Err: fmt.Errorf("open remote session: %w", err)}
	}
	return s.agg.Scan(ctx, center, steps, fetch.Limited(h, s.limiter))
}

// Reset forgets every reported instance so they are shown again.
func (s *Session) Reset() {
	s.pipe.Store().Reset()
	observability.SetDedupStoreSize(0)
	s.log.InfoContext(s.ctx(context.Background()), "session reset")
}

// Seen reports how many instances this session has reported.
func (s *Session) Seen() int { return s.pipe.Store().Len() }

// Close cancels in-flight scans and waits for them to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.shutdown()
	s.wg.Wait()
}
