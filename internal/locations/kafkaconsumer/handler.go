package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

// groupHandler feeds each claimed partition through process in offset order
// and marks a message only after process accepted it.
type groupHandler struct {
	process messageProcessor
	log     *slog.Logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.log != nil {
		h.log.InfoContext(sess.Context(), "location partitions assigned",
			"member", sess.MemberID(), "generation", sess.GenerationID(), "claims", sess.Claims())
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.log != nil {
		h.log.DebugContext(sess.Context(), "location partitions released", "generation", sess.GenerationID())
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			// rebalance or shutdown; unmarked messages are redelivered
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("location event %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
