// Package relay hands notifications on external channels to the
// outbound message stream.
package relay

//go:generate mockgen -source=kafka.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"fmt"

	"flock/internal/notification/models"
)

const DefaultTopic = "notifications.outbound"

// Producer writes one keyed record to a topic.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaRelay publishes email, sms and whatsapp notifications as JSON,
// keyed by church id so a church's messages stay ordered.
type KafkaRelay struct {
	producer Producer
	topic    string
}

type Option func(*KafkaRelay)

func WithTopic(topic string) Option {
	return func(r *KafkaRelay) {
		if topic != "" {
			r.topic = topic
		}
	}
}

func NewKafka(producer Producer, opts ...Option) *KafkaRelay {
	r := &KafkaRelay{producer: producer, topic: DefaultTopic}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *KafkaRelay) Topic() string {
	return r.topic
}

// Publish ignores in-app notifications.
func (r *KafkaRelay) Publish(ctx context.Context, n *models.Notification) error {
	if n == nil || !n.Channel.IsExternal() {
		return nil
	}
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	if err := r.producer.Produce(ctx, r.topic, []byte(n.ChurchID.String()), value); err != nil {
		return fmt.Errorf("relay notification %s: %w", n.ID, err)
	}
	return nil
}
