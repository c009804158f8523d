// Package redispolicy keeps kind show flags in a Redis hash shared by every
// instance of the service.
package redispolicy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type Store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field, value string) error
}

type Config struct {
	Key       string
	Default   bool
	OpTimeout time.Duration
}

// Policy serves IsEnabled from the last snapshot loaded by Refresh.
type Policy struct {
	store Store
	cfg   Config
	log   *slog.Logger

	mu    sync.RWMutex
	kinds map[int]bool
}

func New(store Store, cfg Config, log *slog.Logger) *Policy {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Policy{store: store, cfg: cfg, log: log, kinds: map[int]bool{}}
}

func (p *Policy) IsEnabled(kind int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.kinds[kind]; ok {
		return v
	}
	return p.cfg.Default
}

// Refresh reloads the hash. On error the previous snapshot stays in effect.
func (p *Policy) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
	defer cancel()

	raw, err := p.store.HGetAll(ctx, p.cfg.Key)
	if err != nil {
		return fmt.Errorf("refresh filter policy: %w", err)
	}
	next := make(map[int]bool, len(raw))
	for field, val := range raw {
		kind, err := strconv.Atoi(field)
		if err != nil {
			p.log.Warn("filter policy: skipping non-numeric kind", "key", p.cfg.Key, "field", field)
			continue
		}
		show, err := strconv.ParseBool(val)
		if err != nil {
			p.log.Warn("filter policy: skipping bad flag", "key", p.cfg.Key, "kind", kind, "value", val)
			continue
		}
		next[kind] = show
	}

	p.mu.Lock()
	p.kinds = next
	p.mu.Unlock()
	return nil
}

// Set writes the flag through to Redis and updates the local snapshot.
func (p *Policy) Set(ctx context.Context, kind int, show bool) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
	defer cancel()

	v := "0"
	if show {
		v = "1"
	}
	if err := p.store.HSet(ctx, p.cfg.Key, strconv.Itoa(kind), v); err != nil {
		return fmt.Errorf("set filter kind %d: %w", kind, err)
	}
	p.mu.Lock()
	p.kinds[kind] = show
	p.mu.Unlock()
	return nil
}
