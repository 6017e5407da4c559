//go:build integration

package index_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"registrar/internal/event/index"
	"registrar/internal/event/models"
	"registrar/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kgo.Client
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	client, err := kgo.NewClient(kgo.SeedBrokers(s.redpanda.Brokers...))
	s.Require().NoError(err)
	s.producer = client
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	s.producer.Close()
}

func (s *KafkaPublisherSuite) TestPublishesKeyedProjection() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "registrar.events.test"
	pub := index.NewKafkaPublisher(s.producer, topic)
	s.Require().NoError(pub.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(pub.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	state := models.NewEventState()
	state.Status = models.EventRegistered
	state.Flags.Add(models.FlagPendingCertification)
	s.Require().NoError(pub.Index(ctx, models.IndexedEvent{ID: "e1", Type: "birth", State: state}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	s.Equal("e1", string(records[0].Key))
	var got models.IndexedEvent
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(models.EventRegistered, got.State.Status)
	s.True(got.State.HasFlag(models.FlagPendingCertification))
}
