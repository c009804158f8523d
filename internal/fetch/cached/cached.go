// Package cached puts a short-lived Redis cache in front of a remote fetcher.
// Entries are keyed by the exact queried coordinate and grouped by H3 cell.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/hexscan/internal/cache/keys"
	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type CellMapper interface {
	CellOf(c model.Coordinate, res int) (string, error)
}

type Config struct {
	Source    string
	Res       int
	TTL       time.Duration
	OpTimeout time.Duration
}

type Fetcher struct {
	inner  fetch.Fetcher
	store  Store
	mapper CellMapper
	cfg    Config
	log    *slog.Logger
}

func New(inner fetch.Fetcher, store Store, mapper CellMapper, cfg Config, log *slog.Logger) *Fetcher {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{inner: inner, store: store, mapper: mapper, cfg: cfg, log: log}
}

// Wrap decorates every handle opened by fac.
func Wrap(fac fetch.Factory, store Store, mapper CellMapper, cfg Config, log *slog.Logger) fetch.Factory {
	return fetch.FactoryFunc(func(ctx context.Context) (fetch.Fetcher, error) {
		h, err := fac.Open(ctx)
		if err != nil {
			return nil, err
		}
		return New(h, store, mapper, cfg, log), nil
	})
}

// Fetch serves from cache when possible. Cache failures never fail the fetch.
func (f *Fetcher) Fetch(ctx context.Context, at model.Coordinate) ([]model.Entity, error) {
	cell, err := f.mapper.CellOf(at, f.cfg.Res)
	if err != nil {
		f.log.WarnContext(ctx, "point cache: no cell, bypassing", "point", at.String(), "err", err)
		observability.IncPointCache("bypass")
		return f.inner.Fetch(ctx, at)
	}
	key := keys.PointKey(f.cfg.Source, f.cfg.Res, cell, at.Lat, at.Lon)

	if got, ok := f.lookup(ctx, key); ok {
		observability.IncPointCache("hit")
		return got, nil
	}
	observability.IncPointCache("miss")

	got, err := f.inner.Fetch(ctx, at)
	if err != nil {
		return nil, err
	}
	f.save(ctx, key, got)
	return got, nil
}

func (f *Fetcher) lookup(ctx context.Context, key string) ([]model.Entity, bool) {
	opCtx, cancel := context.WithTimeout(ctx, f.cfg.OpTimeout)
	defer cancel()
	b, found, err := f.store.Get(opCtx, key)
	if err != nil {
		f.log.WarnContext(ctx, "point cache get failed", "key", key, "err", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var out []model.Entity
	if err := json.Unmarshal(b, &out); err != nil {
		f.log.WarnContext(ctx, "point cache: corrupt entry", "key", key, "err", err)
		return nil, false
	}
	return out, true
}

func (f *Fetcher) save(ctx context.Context, key string, ents []model.Entity) {
	if ents == nil {
		ents = []model.Entity{}
	}
	b, err := json.Marshal(ents)
	if err != nil {
		f.log.WarnContext(ctx, "point cache marshal failed", "key", key, "err", err)
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, f.cfg.OpTimeout)
	defer cancel()
	if err := f.store.Set(opCtx, key, b, f.cfg.TTL); err != nil {
		f.log.WarnContext(ctx, "point cache set failed", "key", key, "err", err)
	}
}
