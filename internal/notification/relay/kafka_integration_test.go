//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"flock/internal/notification/models"
	"flock/internal/notification/relay"
	"flock/internal/platform/kafka"
	"flock/pkg/testutil/containers"
)

type KafkaRelaySuite struct {
	suite.Suite
	broker   string
	producer *kafka.Producer
}

func TestKafkaRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaRelaySuite))
}

func (s *KafkaRelaySuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
	producer, err := kafka.NewProducer([]string{s.broker}, "flock-test")
	s.Require().NoError(err)
	s.producer = producer
}

func (s *KafkaRelaySuite) TearDownSuite() {
	s.producer.Close()
}

func (s *KafkaRelaySuite) TestPublishedRecordIsKeyedByChurch() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "notifications.outbound.test"
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1), "second call is a no-op")

	n := &models.Notification{
		ID:        21,
		ChurchID:  7,
		Title:     "Choir practice",
		Message:   "Moved to Thursday",
		Channel:   models.ChannelSMS,
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(relay.NewKafka(s.producer, relay.WithTopic(topic)).Publish(ctx, n))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	s.Equal("7", string(records[0].Key))
	var got models.Notification
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(n.ID, got.ID)
	s.Equal(models.ChannelSMS, got.Channel)
}
