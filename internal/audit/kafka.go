package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"heimdall/pkg/platform/sentinel"
)

// KafkaSink publishes events to a topic for downstream consumers (SIEM,
// occupancy dashboards). Records are keyed by tag so all presentations of
// one tag land on one partition in order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// kafkaEvent is the wire form. Field names are part of the consumer
// contract; do not rename.
type kafkaEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	TagID     string    `json:"tag_id"`
	MemberID  string    `json:"member_id,omitempty"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason"`
	Stale     bool      `json:"stale,omitempty"`
}

// NewKafkaSink connects to the brokers and creates the topic if missing.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	_, err := adm.CreateTopic(ctx, 1, -1, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

func (s *KafkaSink) Append(ctx context.Context, event AccessEvent) error {
	wire := kafkaEvent{
		ID:        event.ID.String(),
		Timestamp: event.Timestamp,
		TagID:     string(event.TagID),
		Decision:  event.Decision,
		Reason:    event.Reason,
		Stale:     event.Stale,
	}
	if event.MemberID != nil {
		wire.MemberID = event.MemberID.String()
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal access event %s: %w", event.ID, err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.TagID),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("%w: produce access event %s: %v", sentinel.ErrUnavailable, event.ID, err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
