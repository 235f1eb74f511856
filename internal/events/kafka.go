// Package events publishes coupon lifecycle events.
package events

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

var _ coupon.Publisher = (*KafkaPublisher)(nil)

// KafkaConfig configures the Kafka client used for coupon events.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// KafkaPublisher writes events to a single topic keyed by coupon id, so
// events for one coupon stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaClient builds a producer client for cfg.
func NewKafkaClient(cfg KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka client")
	}
	return client, nil
}

// NewKafkaPublisher returns a publisher that produces to topic.
func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

// Publish produces e and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, e coupon.Event) error {
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(e.CouponID, 10)),
		Value: Encode(e),
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return errors.Wrapf(err, "produce %s", e.Kind)
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// EnsureTopic creates the events topic. An existing topic is not an error.
func EnsureTopic(ctx context.Context, client *kgo.Client, cfg KafkaConfig) error {
	partitions, rf := cfg.Partitions, cfg.ReplicationFactor
	if partitions <= 0 {
		partitions = 1
	}
	if rf <= 0 {
		rf = 1
	}

	resp, err := kadm.NewClient(client).CreateTopics(ctx, partitions, rf, nil, cfg.Topic)
	if err != nil {
		return errors.Wrapf(err, "create topic %s", cfg.Topic)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return errors.Wrapf(t.Err, "create topic %s", t.Topic)
		}
	}
	return nil
}
