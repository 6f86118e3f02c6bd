package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// Producer publishes chat events through a synchronous sarama producer.
// Idempotent production plus acks=all keeps the outbox's at-least-once
// delivery from turning into duplicates on broker failover.
type Producer struct {
	inner sarama.SyncProducer
}

// NewProducer dials the brokers. A nil cfg gets sane defaults.
func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	inner, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{inner: inner}, nil
}

// Publish sends one keyed record. Events sharing a key (conversation id)
// land on one partition, preserving their order for consumers.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	records := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		records = append(records, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	_, _, err := p.inner.SendMessage(&sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: records,
	})
	return err
}

func (p *Producer) Close() error {
	if p.inner == nil {
		return nil
	}
	return p.inner.Close()
}
