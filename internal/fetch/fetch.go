// Package fetch defines the remote entity lookup used by scans and its typed failures.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

// Fetcher returns the entities the remote service reports near one coordinate.
// A Fetcher is a single remote-session handle and is not safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, at model.Coordinate) ([]model.Entity, error)
}

type Func func(ctx context.Context, at model.Coordinate) ([]model.Entity, error)

func (f Func) Fetch(ctx context.Context, at model.Coordinate) ([]model.Entity, error) {
	return f(ctx, at)
}

// Factory opens a fresh authenticated handle; every scan gets its own.
type Factory interface {
	Open(ctx context.Context) (Fetcher, error)
}

type FactoryFunc func(ctx context.Context) (Fetcher, error)

func (f FactoryFunc) Open(ctx context.Context) (Fetcher, error) { return f(ctx) }

// Static hands out the same fetcher for every scan.
func Static(f Fetcher) Factory {
	return FactoryFunc(func(context.Context) (Fetcher, error) { return f, nil })
}

// AuthError reports a credential or login failure against the remote service.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError reports a failed remote call.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return "network: " + e.Err.Error()
	}
	return fmt.Sprintf("network %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Limited paces calls to f through a token bucket. A nil limiter disables pacing.
func Limited(f Fetcher, l *rate.Limiter) Fetcher {
	if l == nil {
		return f
	}
	return &limited{inner: f, lim: l}
}

// NewLimiter allows rps fetches per second with a burst of one; rps <= 0 returns nil.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

type limited struct {
	inner Fetcher
	lim   *rate.Limiter
}

func (l *limited) Fetch(ctx context.Context, at model.Coordinate) ([]model.Entity, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch rate limit wait: %w", err)
	}
	return l.inner.Fetch(ctx, at)
}
