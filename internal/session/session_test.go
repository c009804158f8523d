package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
	"github.com/mohammed-shakir/hexscan/internal/filter"
	"github.com/mohammed-shakir/hexscan/internal/pipeline"
	"github.com/mohammed-shakir/hexscan/internal/planner"
	"github.com/mohammed-shakir/hexscan/internal/scan"
)

var center = model.Coordinate{Lat: 37, Lon: -122}

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

func (r *recorder) snapshot() []model.Discovery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Discovery(nil), r.got...)
}

// remote world: A (kind 1) sits on the center, B on the third point of ring 2
func world(t *testing.T, clk *fakeClock) map[model.Coordinate][]model.Entity {
	return worldWithKindB(t, clk, 1)
}

func worldWithKindB(t *testing.T, clk *fakeClock, kindB int) map[model.Coordinate][]model.Entity {
	t.Helper()
	plan, err := planner.New(planner.DefaultStepDistance).Plan(center, 2)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return map[model.Coordinate][]model.Entity{
		plan[0]: {{Kind: 1, InstanceID: "a1", Coordinate: plan[0], ExpiresAtMs: model.NoExpiry}},
		plan[3]: {{Kind: kindB, InstanceID: "b1", Coordinate: plan[3], ExpiresAtMs: clk.t.Add(60 * time.Second).UnixMilli()}},
	}
}

func worldFetcher(w map[model.Coordinate][]model.Entity, fail *bool) fetch.Fetcher {
	return fetch.Func(func(_ context.Context, at model.Coordinate) ([]model.Entity, error) {
		if fail != nil && *fail {
			return nil, &fetch.NetworkError{Op: "GET", Err: errors.New("connection reset")}
		}
		return w[at], nil
	})
}

func newSession(t *testing.T, fac fetch.Factory, policy filter.Policy, rec *recorder, clk *fakeClock) *Session {
	t.Helper()
	s := New(Config{Steps: 2}, Deps{Factory: fac, Policy: policy, Sink: rec, Now: clk.Now})
	t.Cleanup(s.Close)
	return s
}

func TestScan_EndToEnd(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	fail := false
	s := newSession(t, fetch.Static(worldFetcher(world(t, clk), &fail)), nil, rec, clk)

	res, err := s.Scan(context.Background(), center)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := rec.snapshot()
	if res.Emitted != 2 || len(got) != 2 {
		t.Fatalf("result=%+v discoveries=%d", res, len(got))
	}
	if got[0].Entity.InstanceID != "a1" || got[0].Expires {
		t.Fatalf("first discovery %+v, want a1 without expiry", got[0])
	}
	if got[1].Entity.InstanceID != "b1" || got[1].Entity.Kind != 1 || !got[1].Expires || got[1].Remaining != 60*time.Second {
		t.Fatalf("second discovery %+v, want b1 with 60s left", got[1])
	}

	// same world again: nothing new
	res, err = s.Scan(context.Background(), center)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if res.Emitted != 0 || res.Duplicates != 2 || len(rec.snapshot()) != 2 {
		t.Fatalf("second scan result=%+v", res)
	}

	// failing remote: retryable error with the center, nothing emitted
	fail = true
	_, err = s.Scan(context.Background(), center)
	var se *scan.Error
	if !errors.As(err, &se) || !se.Retryable() || se.Center != center {
		t.Fatalf("err=%v want retryable scan error for %v", err, center)
	}
	if len(rec.snapshot()) != 2 {
		t.Fatalf("failed scan emitted discoveries")
	}
}

func TestScan_FreshHandlePerScan(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	opened := 0
	fac := fetch.FactoryFunc(func(context.Context) (fetch.Fetcher, error) {
		opened++
		return worldFetcher(nil, nil), nil
	})
	s := newSession(t, fac, nil, &recorder{}, clk)
	for i := 0; i < 3; i++ {
		if _, err := s.Scan(context.Background(), center); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}
	if opened != 3 {
		t.Fatalf("opened=%d want 3", opened)
	}
}

func TestScan_LoginFailureIsRetryable(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	fac := fetch.FactoryFunc(func(context.Context) (fetch.Fetcher, error) {
		return nil, &fetch.AuthError{Err: errors.New("bad password")}
	})
	s := newSession(t, fac, nil, &recorder{}, clk)
	_, err := s.Scan(context.Background(), center)
	var se *scan.Error
	if !errors.As(err, &se) || !se.Retryable() || !fetch.IsAuth(err) {
		t.Fatalf("err=%v want retryable auth failure", err)
	}
}

func TestScan_FilteredKindHiddenThenShownAfterEnable(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	policy := filter.AllowAll()
	policy.Set(2, false)
	s := newSession(t, fetch.Static(worldFetcher(worldWithKindB(t, clk, 2), nil)), policy, rec, clk)

	res, err := s.Scan(context.Background(), center)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Emitted != 1 || res.Filtered != 1 {
		t.Fatalf("result=%+v", res)
	}
	policy.Set(2, true)
	res, err = s.Scan(context.Background(), center)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Emitted != 1 || rec.snapshot()[1].Entity.InstanceID != "b1" {
		t.Fatalf("re-enabled kind not reported: %+v", res)
	}
}

func TestReset_ReportsAgain(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	s := newSession(t, fetch.Static(worldFetcher(world(t, clk), nil)), nil, rec, clk)

	if _, err := s.Scan(context.Background(), center); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if s.Seen() != 2 {
		t.Fatalf("seen=%d", s.Seen())
	}
	s.Reset()
	res, err := s.Scan(context.Background(), center)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Emitted != 2 {
		t.Fatalf("after reset: %+v", res)
	}
}

// blockingFactory parks the first scan's first fetch until released
type blockingFactory struct {
	world   map[model.Coordinate][]model.Entity
	entered chan struct{}
	once    sync.Once
}

func (b *blockingFactory) Open(context.Context) (fetch.Fetcher, error) {
	return fetch.Func(func(ctx context.Context, at model.Coordinate) ([]model.Entity, error) {
		first := false
		b.once.Do(func() { first = true })
		if first {
			close(b.entered)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return b.world[at], nil
	}), nil
}

func TestScan_NewerScanSupersedesInFlight(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	fac := &blockingFactory{world: world(t, clk), entered: make(chan struct{})}
	s := newSession(t, fac, nil, rec, clk)

	type outcome struct {
		res pipeline.Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := s.Scan(context.Background(), center)
		first <- outcome{res, err}
	}()
	<-fac.entered

	res, err := s.Scan(context.Background(), center)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if res.Emitted != 2 {
		t.Fatalf("second scan result=%+v", res)
	}

	select {
	case o := <-first:
		if !errors.Is(o.err, pipeline.ErrStaleEpoch) {
			t.Fatalf("superseded scan err=%v want ErrStaleEpoch", o.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("superseded scan was not canceled")
	}
	if len(rec.snapshot()) != 2 {
		t.Fatalf("discoveries=%d want 2", len(rec.snapshot()))
	}
}

func TestTrigger_RunsInBackgroundAndReportsErrors(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	errs := make(chan error, 1)
	fail := true
	s := New(Config{Steps: 2}, Deps{
		Factory: fetch.Static(worldFetcher(world(t, clk), &fail)),
		Sink:    rec,
		Now:     clk.Now,
		OnError: func(_ uint64, err error) { errs <- err },
	})
	defer s.Close()

	if ep := s.Trigger(center); ep == 0 {
		t.Fatalf("Trigger returned epoch 0")
	}
	select {
	case err := <-errs:
		if !fetch.IsNetwork(err) {
			t.Fatalf("err=%v want network error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnError not called")
	}
}

func TestClose_CancelsAndRejects(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	fac := &blockingFactory{entered: make(chan struct{})}
	s := New(Config{Steps: 2}, Deps{Factory: fac, Now: clk.Now, OnError: func(uint64, error) {}})

	s.Trigger(center)
	<-fac.entered

	done := make(chan struct{})
	go func() { s.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not cancel the in-flight scan")
	}
	if _, err := s.Scan(context.Background(), center); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
}
