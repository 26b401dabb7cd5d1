//go:build integration

package summarycache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chatline/internal/contacts/models"
	"chatline/internal/contacts/store/summarycache"
	id "chatline/pkg/domain"
	"chatline/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *summarycache.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = summarycache.NewRedis(s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	alice := models.UserSummary{ID: id.NewUserID(), Handle: "alice", Email: "alice@chat.test", DisplayName: "Alice"}
	bob := models.UserSummary{ID: id.NewUserID(), Handle: "bob", Email: "bob@chat.test", AvatarRef: "avatars/bob.png"}

	s.Require().NoError(s.cache.SetMany(ctx, []models.UserSummary{alice, bob}))

	missing := id.NewUserID()
	got, err := s.cache.GetMany(ctx, []id.UserID{alice.ID, missing, bob.ID})
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal(alice, got[alice.ID])
	s.Equal(bob, got[bob.ID])
	_, ok := got[missing]
	s.False(ok)
}

func (s *RedisCacheSuite) TestEntriesCarryTTL() {
	ctx := context.Background()
	alice := models.UserSummary{ID: id.NewUserID(), Handle: "alice"}
	s.Require().NoError(s.cache.SetMany(ctx, []models.UserSummary{alice}))

	ttl, err := s.redis.Client.TTL(ctx, "contacts:summary:"+alice.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisCacheSuite) TestCorruptEntryIsAMiss() {
	ctx := context.Background()
	alice := id.NewUserID()
	s.Require().NoError(s.redis.Client.Set(ctx, "contacts:summary:"+alice.String(), "{not json", time.Minute).Err())

	got, err := s.cache.GetMany(ctx, []id.UserID{alice})
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *RedisCacheSuite) TestInvalidate() {
	ctx := context.Background()
	alice := models.UserSummary{ID: id.NewUserID(), Handle: "alice"}
	s.Require().NoError(s.cache.SetMany(ctx, []models.UserSummary{alice}))
	s.Require().NoError(s.cache.Invalidate(ctx, alice.ID))

	got, err := s.cache.GetMany(ctx, []id.UserID{alice.ID})
	s.Require().NoError(err)
	s.Empty(got)
}
