package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/hexscan/internal/cache/keys"
	"github.com/mohammed-shakir/hexscan/internal/cache/redisstore"
	"github.com/mohammed-shakir/hexscan/internal/core/config"
	"github.com/mohammed-shakir/hexscan/internal/core/health"
	"github.com/mohammed-shakir/hexscan/internal/core/httpclient"
	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
	"github.com/mohammed-shakir/hexscan/internal/fetch/cached"
	"github.com/mohammed-shakir/hexscan/internal/fetch/httpfetch"
	"github.com/mohammed-shakir/hexscan/internal/filter"
	"github.com/mohammed-shakir/hexscan/internal/filter/redispolicy"
	"github.com/mohammed-shakir/hexscan/internal/mapper"
	h3mapper "github.com/mohammed-shakir/hexscan/internal/mapper/h3"
	"github.com/mohammed-shakir/hexscan/internal/planner"
	"github.com/mohammed-shakir/hexscan/internal/scan"
	"github.com/mohammed-shakir/hexscan/internal/session"
	"github.com/mohammed-shakir/hexscan/internal/sink"
)

// stack holds the collaborators shared by serve and scan.
type stack struct {
	planner *planner.Planner
	mapper  mapper.Interface
	redis   *redisstore.Client
	factory fetch.Factory
	policy  filter.Policy
	checks  []health.Check
	closers []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func (s *stack) cellOf(c model.Coordinate) (string, error) {
	return s.mapper.CellOf(c, cfg.Cache.H3Res)
}

func (s *stack) planCells(plan model.ScanPlan) ([]string, error) {
	return s.mapper.CellsForPlan(plan, cfg.Cache.H3Res)
}

func buildStack(ctx context.Context, c config.Config, log *slog.Logger) (*stack, error) {
	if c.Scan.StepDistance <= 0 {
		return nil, fmt.Errorf("scan step distance must be positive, got %v", c.Scan.StepDistance)
	}
	st := &stack{
		planner: planner.New(c.Scan.StepDistance),
		mapper:  h3mapper.New(),
	}

	remote, err := httpfetch.New(httpfetch.Config{
		BaseURL: c.Remote.URL,
		Token:   c.Remote.Token,
		Client:  httpclient.NewOutbound(c.Remote.Timeout),
	})
	if err != nil {
		return nil, err
	}
	st.factory = remote

	if c.Cache.RedisAddr != "" {
		rc, err := redisstore.New(ctx, c.Cache.RedisAddr)
		if err != nil {
			return nil, err
		}
		st.redis = rc
		st.closers = append(st.closers, rc.Close)
		st.checks = append(st.checks, health.Check{Name: "redis", Probe: rc.Ping})
		if c.Cache.PointCacheTTL > 0 {
			st.factory = cached.Wrap(remote, rc, st.mapper, cached.Config{
				Source:    remote.Source(),
				Res:       c.Cache.H3Res,
				TTL:       c.Cache.PointCacheTTL,
				OpTimeout: c.Cache.OpTimeout,
			}, log)
			log.Info("point cache enabled", "ttl", c.Cache.PointCacheTTL, "h3_res", c.Cache.H3Res)
		}
	}

	base := filter.AllowAll()
	if c.Filter.File != "" {
		if base, err = filter.LoadFile(c.Filter.File); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	st.policy = base
	if c.Filter.RedisKey != "" {
		if st.redis == nil {
			_ = st.Close()
			return nil, errors.New("FILTER_REDIS_KEY requires REDIS_ADDR")
		}
		p := redispolicy.New(st.redis, redispolicy.Config{
			Key:       keys.FilterKey(c.Filter.RedisKey),
			Default:   base.Default(),
			OpTimeout: c.Cache.OpTimeout,
		}, log)
		if err := p.Refresh(ctx); err != nil {
			log.Warn("initial filter load failed; showing every kind until refreshed", "err", err)
		}
		st.policy = p
	}
	return st, nil
}

func (s *stack) newSession(c config.Config, out sink.Sink, log *slog.Logger) *session.Session {
	return session.New(session.Config{
		Steps:         c.Scan.Steps,
		DedupCapacity: c.DedupCapacity,
	}, session.Deps{
		Aggregator: scan.NewAggregator(s.planner, log),
		Factory:    s.factory,
		Policy:     s.policy,
		Sink:       out,
		Limiter:    fetch.NewLimiter(c.Scan.FetchRPS),
		CellOf:     s.cellOf,
		Logger:     log,
	})
}
