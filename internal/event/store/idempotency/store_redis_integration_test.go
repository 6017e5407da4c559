//go:build integration

package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrar/internal/event/models"
	"registrar/internal/event/store/idempotency"
	"registrar/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *idempotency.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = idempotency.NewRedis(s.redis.Client, time.Minute)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	result := models.StoredResult{
		ActionType:  models.ActionRegister,
		RequestedBy: "registrar-1",
		Result: models.ActionResult{
			ActionID: "a1",
			Outcome:  models.OutcomePending,
			Event:    models.EventView{ID: "e1", Type: "birth", State: models.NewEventState()},
		},
	}
	s.Require().NoError(s.store.Put(ctx, "e1", "key", result))

	got, ok, err := s.store.Get(ctx, "e1", "key")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(models.ActionRegister, got.ActionType)
	s.Equal("registrar-1", got.RequestedBy)
	s.Equal("a1", got.Result.ActionID)
	s.Equal(models.OutcomePending, got.Result.Outcome)
	s.Equal(models.EventCreated, got.Result.Event.State.Status)

	ttl, err := s.redis.Client.TTL(ctx, "idem:e1:key").Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}

func (s *RedisStoreSuite) TestFirstWriteWins() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "e1", "key", models.StoredResult{Result: models.ActionResult{ActionID: "first"}}))
	s.Require().NoError(s.store.Put(ctx, "e1", "key", models.StoredResult{Result: models.ActionResult{ActionID: "second"}}))

	got, ok, err := s.store.Get(ctx, "e1", "key")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("first", got.Result.ActionID)
}

func (s *RedisStoreSuite) TestMissingKey() {
	_, ok, err := s.store.Get(context.Background(), "e1", "nope")
	s.Require().NoError(err)
	s.False(ok)
}
