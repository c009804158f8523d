// Package kafkasink publishes discoveries to a Kafka topic.
package kafkasink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/sink"
)

// Publisher is a non-blocking sink: when its queue is full the discovery is
// dropped and counted.
type Publisher struct {
	topic string
	prod  sarama.AsyncProducer
	log   *slog.Logger

	mu      sync.RWMutex
	closed  bool
	events  chan sink.Event
	stopped chan struct{}
}

func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	return cfg
}

func New(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafkasink: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, log), nil
}

func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	p := newPublisher(prod, topic, queueSize, log)
	go p.forward()
	go p.drainErrors()
	return p
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		topic:   topic,
		prod:    prod,
		log:     log,
		events:  make(chan sink.Event, queueSize),
		stopped: make(chan struct{}),
	}
}

func (p *Publisher) forward() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			p.log.Error("kafkasink: marshal", "err", err)
			continue
		}
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.InstanceID),
			Value: sarama.ByteEncoder(b),
		}
	}
}

func (p *Publisher) drainErrors() {
	for err := range p.prod.Errors() {
		if err != nil {
			p.log.Error("kafkasink: producer error", "err", err)
		}
	}
}

func (p *Publisher) OnEntity(d model.Discovery) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncPublishDropped("kafka")
		return
	}
	select {
	case p.events <- sink.EventOf(d):
	default:
		observability.IncPublishDropped("kafka")
	}
}

// Close flushes queued discoveries and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafkasink: close producer: %w", err)
	}
	return nil
}
