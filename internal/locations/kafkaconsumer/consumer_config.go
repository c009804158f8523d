package kafkaconsumer

import (
	"time"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// OrderingWindow is how many sources are remembered for dropping out-of-order events.
	OrderingWindow int
}

func DefaultConfig(brokers []string, topic, group string) Config {
	return Config{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// only the newest position matters
		InitialOffsetOldest: false,
		OrderingWindow:      4096,
	}
}
