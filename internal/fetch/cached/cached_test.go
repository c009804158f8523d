package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/hexscan/internal/cache/redisstore"
	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
	h3mapper "github.com/mohammed-shakir/hexscan/internal/mapper/h3"
	"github.com/mohammed-shakir/hexscan/internal/planner"
	"github.com/mohammed-shakir/hexscan/internal/scan"
)

var at = model.Coordinate{Lat: 37, Lon: -122}

func setup(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func counting(calls *int, err error) fetch.Fetcher {
	return fetch.Func(func(_ context.Context, c model.Coordinate) ([]model.Entity, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return []model.Entity{{Kind: 1, InstanceID: "sp-1", Coordinate: c, ExpiresAtMs: model.NoExpiry}}, nil
	})
}

func TestFetch_SecondLookupIsServedFromCache(t *testing.T) {
	rc, mr := setup(t)
	calls := 0
	f := New(counting(&calls, nil), rc, h3mapper.New(), Config{Source: "http://remote", Res: 9, TTL: 30 * time.Second}, nil)

	for i := 0; i < 2; i++ {
		got, err := f.Fetch(context.Background(), at)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(got) != 1 || got[0].InstanceID != "sp-1" || got[0].HasExpiry() {
			t.Fatalf("entities=%+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("remote calls=%d want 1", calls)
	}

	mr.FastForward(31 * time.Second)
	if _, err := f.Fetch(context.Background(), at); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expired entry must go remote; calls=%d", calls)
	}
}

func TestFetch_EmptyResultsAreCached(t *testing.T) {
	rc, _ := setup(t)
	calls := 0
	empty := fetch.Func(func(context.Context, model.Coordinate) ([]model.Entity, error) {
		calls++
		return nil, nil
	})
	f := New(empty, rc, h3mapper.New(), Config{Res: 9, TTL: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), at); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestFetch_RemoteErrorsAreNotCached(t *testing.T) {
	rc, _ := setup(t)
	calls := 0
	boom := &fetch.NetworkError{Op: "GET", Err: errors.New("reset")}
	f := New(counting(&calls, boom), rc, h3mapper.New(), Config{Res: 9, TTL: time.Minute}, nil)
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), at); !fetch.IsNetwork(err) {
			t.Fatalf("err=%v want network error", err)
		}
	}
	if calls != 2 {
		t.Fatalf("calls=%d want 2", calls)
	}
}

func TestFetch_RedisDownFallsThrough(t *testing.T) {
	rc, mr := setup(t)
	mr.Close()
	calls := 0
	f := New(counting(&calls, nil), rc, h3mapper.New(), Config{Res: 9, TTL: time.Minute, OpTimeout: 50 * time.Millisecond}, nil)
	got, err := f.Fetch(context.Background(), at)
	if err != nil || len(got) != 1 || calls != 1 {
		t.Fatalf("got=%v err=%v calls=%d", got, err, calls)
	}
}

func TestWrap_DecoratesEveryHandle(t *testing.T) {
	rc, _ := setup(t)
	calls := 0
	fac := Wrap(fetch.Static(counting(&calls, nil)), rc, h3mapper.New(), Config{Res: 9, TTL: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		h, err := fac.Open(context.Background())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, ok := h.(*Fetcher); !ok {
			t.Fatalf("handle %T is not cached", h)
		}
		if _, err := h.Fetch(context.Background(), at); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("handles must share the cache; calls=%d", calls)
	}
}

func TestFetch_FullScanQueriesEveryPlanPoint(t *testing.T) {
	rc, _ := setup(t)
	calls := 0
	perPoint := fetch.Func(func(_ context.Context, c model.Coordinate) ([]model.Entity, error) {
		calls++
		return []model.Entity{{Kind: 1, InstanceID: c.String(), Coordinate: c, ExpiresAtMs: model.NoExpiry}}, nil
	})
	f := New(perPoint, rc, h3mapper.New(), Config{Source: "http://remote", Res: 9, TTL: time.Minute}, nil)
	agg := scan.NewAggregator(planner.New(planner.DefaultStepDistance), nil)

	steps := planner.DefaultSteps
	want := planner.HexagonalNumber(steps)
	got, err := agg.Scan(context.Background(), at, steps, f)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if calls != want {
		t.Fatalf("remote calls=%d want %d (one per plan point)", calls, want)
	}
	seen := map[string]bool{}
	for _, e := range got {
		seen[e.InstanceID] = true
	}
	if len(seen) != want {
		t.Fatalf("distinct entities=%d want %d", len(seen), want)
	}

	// a repeat scan is answered entirely from the cache
	if _, err := agg.Scan(context.Background(), at, steps, f); err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if calls != want {
		t.Fatalf("repeat scan went remote: calls=%d want %d", calls, want)
	}
}
