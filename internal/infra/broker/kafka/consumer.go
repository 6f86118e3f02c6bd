package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// MessageHandler processes one consumed record. Returning an error leaves
// the offset uncommitted so the record is redelivered; handlers decide
// what is retryable.
type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer runs a sarama consumer group against a fixed handler.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: group, handler: handler}, nil
}

// Run consumes until the context is done. Consume returns on every group
// rebalance, so it loops.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, claimRunner{handler: c.handler}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type claimRunner struct {
	handler MessageHandler
}

func (r claimRunner) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (r claimRunner) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (r claimRunner) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := r.handler.Handle(sess.Context(), msg); err != nil {
			// uncommitted: the record comes back on the next rebalance
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
