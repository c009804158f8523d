package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/dedup"
	"github.com/mohammed-shakir/hexscan/internal/filter"
	"github.com/mohammed-shakir/hexscan/internal/sink"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type recorder struct {
	mu  sync.Mutex
	got []model.Discovery
}

func (r *recorder) OnEntity(d model.Discovery) {
	r.mu.Lock()
	r.got = append(r.got, d)
	r.mu.Unlock()
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, d := range r.got {
		out[i] = d.Entity.InstanceID
	}
	return out
}

func entity(kind int, id string, expiresAtMs int64) model.Entity {
	return model.Entity{Kind: kind, InstanceID: id, Coordinate: model.Coordinate{Lat: 37, Lon: -122}, ExpiresAtMs: expiresAtMs}
}

func newPipeline(policy filter.Policy, rec sink.Sink, clk *fakeClock) *Pipeline {
	return New(policy, dedup.New(0), rec, Options{Now: clk.Now})
}

func TestProcess_EmitsInOrderAndComputesRemaining(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	rec := &recorder{}
	p := newPipeline(nil, rec, clk)

	ep := p.NextEpoch()
	res, err := p.Process(context.Background(), ep, []model.Entity{
		entity(1, "a", model.NoExpiry),
		entity(2, "b", 1_000_000+90_000),
		entity(3, "c", 1_000_000-5_000),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Emitted != 3 || res.Received != 3 || res.Epoch != ep {
		t.Fatalf("result=%+v", res)
	}
	if got := rec.ids(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order=%v", got)
	}
	if rec.got[0].Expires {
		t.Fatalf("NoExpiry entity must not report a lifetime")
	}
	if !rec.got[1].Expires || rec.got[1].Remaining != 90*time.Second {
		t.Fatalf("remaining=%v expires=%v", rec.got[1].Remaining, rec.got[1].Expires)
	}
	// already expired entities are still reported with a negative lifetime
	if rec.got[2].Remaining != -5*time.Second {
		t.Fatalf("expired remaining=%v want -5s", rec.got[2].Remaining)
	}
	if !rec.got[0].DiscoveredAt.Equal(clk.t) || rec.got[0].Epoch != ep {
		t.Fatalf("discovery metadata wrong: %+v", rec.got[0])
	}
}

func TestProcess_NeverReemits(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	p := newPipeline(nil, rec, clk)

	batch := []model.Entity{entity(1, "a", model.NoExpiry), entity(1, "a", model.NoExpiry)}
	res, err := p.Process(context.Background(), p.NextEpoch(), batch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Emitted != 1 || res.Duplicates != 1 {
		t.Fatalf("same id twice in one batch: %+v", res)
	}
	res, err = p.Process(context.Background(), p.NextEpoch(), batch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Emitted != 0 || res.Duplicates != 2 {
		t.Fatalf("second scan: %+v", res)
	}
	if len(rec.ids()) != 1 {
		t.Fatalf("sink saw %v", rec.ids())
	}
}

func TestProcess_FilteredKindsAreNotRecorded(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	policy := filter.AllowAll()
	policy.Set(16, false)
	p := newPipeline(policy, rec, clk)

	res, err := p.Process(context.Background(), p.NextEpoch(), []model.Entity{entity(16, "x", model.NoExpiry)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Filtered != 1 || res.Emitted != 0 || p.Store().Contains("x") {
		t.Fatalf("filtered entity must not be recorded: %+v", res)
	}

	// enabling the kind later makes the same instance reportable
	policy.Set(16, true)
	res, err = p.Process(context.Background(), p.NextEpoch(), []model.Entity{entity(16, "x", model.NoExpiry)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Emitted != 1 {
		t.Fatalf("re-enabled kind must emit: %+v", res)
	}
}

func TestProcess_StaleEpochRejected(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	p := newPipeline(nil, rec, clk)

	old := p.NextEpoch()
	cur := p.NextEpoch()
	if p.Epoch() != cur {
		t.Fatalf("Epoch()=%d want %d", p.Epoch(), cur)
	}
	_, err := p.Process(context.Background(), old, []model.Entity{entity(1, "a", model.NoExpiry)})
	if !errors.Is(err, ErrStaleEpoch) {
		t.Fatalf("err=%v want ErrStaleEpoch", err)
	}
	if len(rec.ids()) != 0 || p.Store().Len() != 0 {
		t.Fatalf("stale result leaked into sink or store")
	}
}

func TestProcess_ResetMakesInstancesNewAgain(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	p := newPipeline(nil, rec, clk)
	batch := []model.Entity{entity(1, "a", model.NoExpiry)}

	if _, err := p.Process(context.Background(), p.NextEpoch(), batch); err != nil {
		t.Fatalf("Process: %v", err)
	}
	p.Store().Reset()
	res, err := p.Process(context.Background(), p.NextEpoch(), batch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Emitted != 1 {
		t.Fatalf("after reset: %+v", res)
	}
}

func TestProcess_CellAttached(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	p := New(nil, nil, rec, Options{
		Now:    clk.Now,
		CellOf: func(model.Coordinate) (string, error) { return "89283082803ffff", nil },
	})
	if _, err := p.Process(context.Background(), p.NextEpoch(), []model.Entity{entity(1, "a", model.NoExpiry)}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.got[0].Cell != "89283082803ffff" {
		t.Fatalf("cell=%q", rec.got[0].Cell)
	}
}

func TestProcess_ConcurrentScansEmitEachInstanceOnce(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	p := newPipeline(nil, rec, clk)
	batch := []model.Entity{entity(1, "a", model.NoExpiry), entity(2, "b", model.NoExpiry)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Process(context.Background(), p.Epoch(), batch)
		}()
	}
	p.NextEpoch()
	wg.Wait()
	if _, err := p.Process(context.Background(), p.Epoch(), batch); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n := len(rec.ids()); n != 2 {
		t.Fatalf("emitted %d discoveries, want 2", n)
	}
}
