//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heimdall/internal/access/cache"
	"heimdall/internal/identity/models"
	"heimdall/internal/identity/store"
	id "heimdall/pkg/domain"
	"heimdall/pkg/requestcontext"
	"heimdall/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	store  *store.InMemory
	cache  *cache.Redis
	ctx    context.Context
	now    time.Time
	member *models.Member
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))

	s.store = store.NewInMemory()
	s.cache = cache.NewRedis(s.redis.Client, s.store, 5*time.Second, time.Hour)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	member, err := s.store.UpsertMember(s.ctx, store.UpsertMemberParams{
		ID:          id.NewMemberID(),
		DisplayName: "Cached Member",
		Status:      models.StatusActive,
		Source:      models.SourceAuthoritative,
		VerifiedAt:  s.now,
	})
	s.Require().NoError(err)
	s.member = member

	_, err = s.store.BindTag(s.ctx, store.BindParams{TagID: "AABBCCDD", MemberID: member.ID})
	s.Require().NoError(err)
}

func (s *RedisCacheSuite) TestResolveRoundTrip() {
	snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)
	s.Require().NotNil(snap.Tag)
	s.Equal(s.member.ID, snap.Member.ID)

	// Second resolve is served from redis: revoke in the store without
	// invalidating and the cached binding must still be visible.
	s.Require().NoError(s.store.RevokeTag(s.ctx, "AABBCCDD"))
	snap, err = s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)
	s.False(snap.Tag.Revoked)
}

func (s *RedisCacheSuite) TestInvalidateTag() {
	_, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)

	s.Require().NoError(s.store.RevokeTag(s.ctx, "AABBCCDD"))
	s.Require().NoError(s.cache.InvalidateTag(s.ctx, "AABBCCDD"))

	snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)
	s.True(snap.Tag.Revoked, "revoke must be visible to the very next resolution")
}

func (s *RedisCacheSuite) TestInvalidateMember() {
	_, err := s.store.BindTag(s.ctx, store.BindParams{TagID: "AABBCC01", MemberID: s.member.ID})
	s.Require().NoError(err)
	for _, tagID := range []id.TagID{"AABBCCDD", "AABBCC01"} {
		_, err := s.cache.Resolve(s.ctx, tagID)
		s.Require().NoError(err)
	}

	_, err = s.store.ExecuteMember(s.ctx, s.member.ID, nil, func(m *models.Member) {
		m.ApplyVerifiedStatus(models.StatusSuspended, s.now, s.now)
	})
	s.Require().NoError(err)
	s.Require().NoError(s.cache.InvalidateMember(s.ctx, s.member.ID))

	for _, tagID := range []id.TagID{"AABBCCDD", "AABBCC01"} {
		snap, err := s.cache.Resolve(s.ctx, tagID)
		s.Require().NoError(err)
		s.Equal(models.StatusSuspended, snap.Member.Status, "tag %s", tagID)
	}
}

func (s *RedisCacheSuite) TestUnknownTag() {
	snap, err := s.cache.Resolve(s.ctx, "11223344")
	s.Require().NoError(err)
	s.Nil(snap.Tag)
}

// reloadGate holds a reload open between its store reads and its
// write-back so invalidations landing in that window can be exercised.
type reloadGate struct {
	cache.Loader
	parked  chan struct{}
	release chan struct{}
}

func (g *reloadGate) LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	member, err := g.Loader.LookupMember(ctx, memberID)
	g.parked <- struct{}{}
	<-g.release
	return member, err
}

func (s *RedisCacheSuite) TestRevokeDuringReloadIsNotLost() {
	gate := &reloadGate{Loader: s.store, parked: make(chan struct{}, 8), release: make(chan struct{})}
	gated := cache.NewRedis(s.redis.Client, gate, 5*time.Second, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := gated.Resolve(s.ctx, "AABBCCDD")
		done <- err
	}()
	<-gate.parked

	// The revoke commits and its invalidation returns while the reload is
	// parked between its store reads and its write-back.
	s.Require().NoError(s.store.RevokeTag(s.ctx, "AABBCCDD"))
	s.Require().NoError(gated.InvalidateTag(s.ctx, "AABBCCDD"))
	close(gate.release)
	s.Require().NoError(<-done)

	snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)
	s.Require().NotNil(snap.Tag)
	s.True(snap.Tag.Revoked, "parked reload must not resurrect the evicted entry")
}
