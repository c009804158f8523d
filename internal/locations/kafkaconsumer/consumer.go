// Package kafkaconsumer turns location update events from Kafka into scans.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	obs "github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/locations"
	mylog "github.com/mohammed-shakir/hexscan/internal/logger"
)

// Triggerer starts a superseding background scan around a center.
type Triggerer interface {
	Trigger(center model.Coordinate) uint64
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target Triggerer
	order  *orderGuard
}

func New(cfg Config, logger *slog.Logger, target Triggerer) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		target: target,
		order:  newOrderGuard(cfg.OrderingWindow),
	}
}

// Start consumes location events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing scan target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne, log: c.logger}
	ctx = mylog.WithComponent(ctx, "location_consumer")

	c.logger.InfoContext(ctx, "location consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "location consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.ErrorContext(ctx, "consumer error", "err", err, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne handles one message. Malformed or out-of-order events are
// skipped so they never block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev locations.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncLocationEvent("decode_error")
		c.logger.WarnContext(ctx, "skipping undecodable location event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncLocationEvent("invalid")
		c.logger.WarnContext(ctx, "skipping invalid location event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if !c.order.shouldApply(ev.SourceKey(), ev.TS) {
		obs.IncLocationEvent("out_of_order")
		c.logger.DebugContext(ctx, "skipping out-of-order location event",
			"source", ev.SourceKey(), "ts", ev.TS)
		return nil
	}

	epoch := c.target.Trigger(ev.Center())
	obs.IncLocationEvent("triggered")
	c.logger.InfoContext(mylog.WithScanEpoch(ctx, epoch), "scan triggered by location update",
		"source", ev.SourceKey(), "center", ev.Center().String())
	return nil
}

// orderGuard remembers the newest timestamp per source.
type orderGuard struct {
	mu  sync.Mutex
	lru *lru.Cache[string, time.Time]
}

func newOrderGuard(size int) *orderGuard {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, time.Time](size)
	return &orderGuard{lru: c}
}

// returns true if ts is newer than the last applied event from source
func (g *orderGuard) shouldApply(source string, ts time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lru.Get(source); ok && !ts.After(last) {
		return false
	}
	g.lru.Add(source, ts)
	return true
}
