// Package pipeline turns fetched entities into discoveries: it drops hidden
// kinds, suppresses instances already reported this session and hands the
// rest to a sink.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/dedup"
	"github.com/mohammed-shakir/hexscan/internal/filter"
	"github.com/mohammed-shakir/hexscan/internal/sink"
)

// ErrStaleEpoch is returned for results of a scan superseded by a newer one.
var ErrStaleEpoch = errors.New("pipeline: scan superseded by a newer epoch")

// CellFunc maps an entity position to a spatial cell id; it may be nil.
type CellFunc func(model.Coordinate) (string, error)

// Result counts what one Process call did with its entities.
type Result struct {
	Epoch      uint64 `json:"epoch"`
	Received   int    `json:"received"`
	Filtered   int    `json:"filtered"`
	Duplicates int    `json:"duplicates"`
	Emitted    int    `json:"emitted"`
}

// Options injects the clock and the optional cell annotator.
type Options struct {
	Now    func() time.Time
	CellOf CellFunc
}

// Pipeline processes one scan result at a time.
type Pipeline struct {
	policy filter.Policy
	store  *dedup.Store
	sink   sink.Sink
	now    func() time.Time
	cellOf CellFunc

	mu     sync.Mutex
	latest uint64
}

// New builds a pipeline; a nil sink discards discoveries.
func New(policy filter.Policy, store *dedup.Store, s sink.Sink, opts Options) *Pipeline {
	if policy == nil {
		policy = filter.AllowAll()
	}
	if store == nil {
		store = dedup.New(0)
	}
	if s == nil {
		s = sink.Func(func(model.Discovery) {})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{policy: policy, store: store, sink: s, now: now, cellOf: opts.CellOf}
}

// NextEpoch issues a new epoch; results tagged with any older epoch are
// rejected from then on.
func (p *Pipeline) NextEpoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest++
	return p.latest
}

func (p *Pipeline) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Store exposes the dedup memory so the session owner can reset it.
func (p *Pipeline) Store() *dedup.Store { return p.store }

// Process runs the filter and dedup stage for one scan. Calls are serialized.
// The sink is invoked while the stage lock is held.
func (p *Pipeline) Process(ctx context.Context, epoch uint64, entities []model.Entity) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{Epoch: epoch, Received: len(entities)}
	if epoch != p.latest {
		observability.AddDiscoveries("stale", len(entities))
		return res, ErrStaleEpoch
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	now := p.now()
	for _, e := range entities {
		if !p.policy.IsEnabled(e.Kind) {
			res.Filtered++
			continue
		}
		if !p.store.Add(e.InstanceID) {
			res.Duplicates++
			continue
		}
		p.sink.OnEntity(p.discovery(e, epoch, now))
		res.Emitted++
	}

	observability.AddDiscoveries("filtered", res.Filtered)
	observability.AddDiscoveries("duplicate", res.Duplicates)
	observability.AddDiscoveries("emitted", res.Emitted)
	observability.SetDedupStoreSize(p.store.Len())
	return res, nil
}

func (p *Pipeline) discovery(e model.Entity, epoch uint64, now time.Time) model.Discovery {
	d := model.Discovery{Entity: e, Epoch: epoch, DiscoveredAt: now}
	d.Remaining, d.Expires = e.RemainingAt(now)
	if p.cellOf != nil {
		if cell, err := p.cellOf(e.Coordinate); err == nil {
			d.Cell = cell
		}
	}
	return d
}
