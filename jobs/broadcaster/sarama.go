package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// SaramaPublisher publishes through an IBM/sarama sync producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaConfig is the producer configuration used for ledger events:
// every replica must acknowledge and partitioning follows the message key.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// DialSarama connects to the brokers, retrying with exponential backoff
// until maxWait elapses or ctx is done.
func DialSarama(
	ctx context.Context,
	brokers []string,
	topic string,
	maxWait time.Duration,
	log *zap.Logger,
) (*SaramaPublisher, error) {
	cfg := NewSaramaConfig()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait

	var producer sarama.SyncProducer
	err := backoff.RetryNotify(
		func() error {
			p, err := sarama.NewSyncProducer(brokers, cfg)
			if err != nil {
				return err
			}
			producer = p
			return nil
		},
		backoff.WithContext(bo, ctx),
		func(err error, next time.Duration) {
			log.Warn("kafka not reachable yet",
				zap.Strings("brokers", brokers),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		},
	)
	if err != nil {
		return nil, err
	}
	return NewSaramaPublisher(producer, topic), nil
}

// NewSaramaPublisher wraps an existing producer; tests pass sarama mocks.
func NewSaramaPublisher(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

func (p *SaramaPublisher) Publish(_ context.Context, key, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(value),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
