package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heimdall/internal/identity/models"
	"heimdall/internal/identity/store"
	id "heimdall/pkg/domain"
	"heimdall/pkg/requestcontext"
)

const (
	freshness       = 5 * time.Second
	statusFreshness = time.Hour
)

type MemoryCacheSuite struct {
	suite.Suite
	store  *store.InMemory
	cache  *Memory
	ctx    context.Context
	now    time.Time
	member *models.Member
}

func TestMemoryCacheSuite(t *testing.T) {
	suite.Run(t, new(MemoryCacheSuite))
}

func (s *MemoryCacheSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.cache = NewMemory(s.store, freshness, statusFreshness)
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

func (s *MemoryCacheSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *MemoryCacheSuite) TestResolve() {
	s.Run("miss loads from store", func() {
		snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
		s.Require().NoError(err)
		s.Require().NotNil(snap.Tag)
		s.Require().NotNil(snap.Member)
		s.Equal(s.member.ID, snap.Member.ID)
		s.Equal(s.now, snap.FetchedAt)
	})

	s.Run("hit within freshness window keeps FetchedAt", func() {
		later := s.at(s.now.Add(freshness))
		snap, err := s.cache.Resolve(later, "AABBCCDD")
		s.Require().NoError(err)
		s.Equal(s.now, snap.FetchedAt, "entry must be served from cache")
	})

	s.Run("aged entry is reloaded", func() {
		later := s.at(s.now.Add(freshness + time.Second))
		snap, err := s.cache.Resolve(later, "AABBCCDD")
		s.Require().NoError(err)
		s.Equal(s.now.Add(freshness+time.Second), snap.FetchedAt)
	})

	s.Run("unknown tag resolves to nil tag without error", func() {
		snap, err := s.cache.Resolve(s.ctx, "11223344")
		s.Require().NoError(err)
		s.Nil(snap.Tag)
		s.Nil(snap.Member)
	})
}

func (s *MemoryCacheSuite) TestStatusStalenessDowngrade() {
	// Prime the cache.
	_, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)

	s.Run("fresh status stays authoritative", func() {
		snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
		s.Require().NoError(err)
		s.Equal(models.SourceAuthoritative, snap.Member.StatusSource)
	})

	s.Run("aged status is served as cached-stale", func() {
		// Reload happens because the entry itself aged out, but the member
		// status in the store has not been re-verified.
		later := s.at(s.now.Add(statusFreshness + time.Minute))
		snap, err := s.cache.Resolve(later, "AABBCCDD")
		s.Require().NoError(err)
		s.Equal(models.SourceCachedStale, snap.Member.StatusSource)
	})
}

func (s *MemoryCacheSuite) TestInvalidation() {
	_, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)

	s.Run("tag invalidation forces a reload", func() {
		s.Require().NoError(s.store.RevokeTag(s.ctx, "AABBCCDD"))
		s.Require().NoError(s.cache.InvalidateTag(s.ctx, "AABBCCDD"))

		snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
		s.Require().NoError(err)
		s.True(snap.Tag.Revoked, "revoke must be visible to the very next resolution")
	})

	s.Run("member invalidation evicts every tag of the member", func() {
		_, err := s.store.BindTag(s.ctx, store.BindParams{TagID: "AABBCC01", MemberID: s.member.ID})
		s.Require().NoError(err)
		_, err = s.cache.Resolve(s.ctx, "AABBCC01")
		s.Require().NoError(err)

		_, err = s.store.ExecuteMember(s.ctx, s.member.ID, nil, func(m *models.Member) {
			m.ApplyVerifiedStatus(models.StatusSuspended, s.now, s.now)
		})
		s.Require().NoError(err)
		s.Require().NoError(s.cache.InvalidateMember(s.ctx, s.member.ID))

		snap, err := s.cache.Resolve(s.ctx, "AABBCC01")
		s.Require().NoError(err)
		s.Equal(models.StatusSuspended, snap.Member.Status)
	})
}

func (s *MemoryCacheSuite) TestSnapshotIsolation() {
	snap, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)

	// Mutating a served snapshot must not poison the cache.
	snap.Tag.Revoked = true
	snap.Member.Status = models.StatusExpired

	again, err := s.cache.Resolve(s.ctx, "AABBCCDD")
	s.Require().NoError(err)
	s.False(again.Tag.Revoked)
	s.Equal(models.StatusActive, again.Member.Status)
}

// TestInvalidationRacesStaleRead pins the ordering contract: an invalidation
// that completes before a resolution starts must win, while resolutions
// already in flight may finish on the pre-invalidation snapshot but must
// never be torn.
func TestInvalidationRacesStaleRead(t *testing.T) {
	st := store.NewInMemory()
	c := NewMemory(st, freshness, statusFreshness)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	member, err := st.UpsertMember(ctx, store.UpsertMemberParams{
		ID: id.NewMemberID(), Status: models.StatusActive,
		Source: models.SourceAuthoritative, VerifiedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.BindTag(ctx, store.BindParams{TagID: "AABBCCDD", MemberID: member.ID}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap, err := c.Resolve(ctx, "AABBCCDD")
			if err != nil {
				t.Error(err)
				return
			}
			// Never torn: a served tag always carries a consistent
			// identifier/binding/revocation triple.
			if snap.Tag != nil && snap.Tag.Revoked && snap.Tag.RevokedAt == nil {
				t.Error("torn snapshot: revoked without timestamp")
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.InvalidateTag(ctx, "AABBCCDD")
		}
	}()
	wg.Wait()

	// Happens-before: once revoke+invalidate complete, the next resolution
	// must observe the revocation.
	if err := st.RevokeTag(ctx, "AABBCCDD"); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateTag(ctx, "AABBCCDD"); err != nil {
		t.Fatal(err)
	}
	snap, err := c.Resolve(ctx, "AABBCCDD")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Tag == nil || !snap.Tag.Revoked {
		t.Fatal("resolution after completed invalidation served stale data")
	}
}

// reloadGate wraps a loader so a reload can be held open between its store
// reads and its install, exercising invalidations that land in that window.
type reloadGate struct {
	Loader
	parked  chan struct{}
	release chan struct{}
}

func newReloadGate(inner Loader) *reloadGate {
	return &reloadGate{
		Loader:  inner,
		parked:  make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (g *reloadGate) LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	member, err := g.Loader.LookupMember(ctx, memberID)
	g.parked <- struct{}{}
	<-g.release
	return member, err
}

// TestRevokeDuringReloadIsNotLost holds a reload open across a completed
// revoke+invalidate. The reload must not install its pre-revoke snapshot:
// every resolution starting after the invalidation returns must see the
// revocation, not a resurrected entry.
func TestRevokeDuringReloadIsNotLost(t *testing.T) {
	st := store.NewInMemory()
	gate := newReloadGate(st)
	c := NewMemory(gate, freshness, statusFreshness)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	member, err := st.UpsertMember(ctx, store.UpsertMemberParams{
		ID: id.NewMemberID(), Status: models.StatusActive,
		Source: models.SourceAuthoritative, VerifiedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.BindTag(ctx, store.BindParams{TagID: "AABBCCDD", MemberID: member.ID}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctx, "AABBCCDD")
		done <- err
	}()
	<-gate.parked

	// The revoke commits and its invalidation returns while the reload is
	// parked between its store reads and its install.
	if err := st.RevokeTag(ctx, "AABBCCDD"); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateTag(ctx, "AABBCCDD"); err != nil {
		t.Fatal(err)
	}
	close(gate.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	snap, err := c.Resolve(ctx, "AABBCCDD")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Tag == nil || !snap.Tag.Revoked {
		t.Fatalf("resolution after completed revoke+invalidate served stale tag: %+v", snap.Tag)
	}
}

// TestMemberInvalidationDuringReloadIsNotLost is the member-side twin: a
// status change whose invalidation completes mid-reload must not be masked
// by the reload's pre-mutation member snapshot.
func TestMemberInvalidationDuringReloadIsNotLost(t *testing.T) {
	st := store.NewInMemory()
	gate := newReloadGate(st)
	c := NewMemory(gate, freshness, statusFreshness)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	member, err := st.UpsertMember(ctx, store.UpsertMemberParams{
		ID: id.NewMemberID(), Status: models.StatusActive,
		Source: models.SourceAuthoritative, VerifiedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.BindTag(ctx, store.BindParams{TagID: "AABBCCDD", MemberID: member.ID}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctx, "AABBCCDD")
		done <- err
	}()
	<-gate.parked

	_, err = st.ExecuteMember(ctx, member.ID, nil, func(m *models.Member) {
		m.ApplyVerifiedStatus(models.StatusSuspended, now, now)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateMember(ctx, member.ID); err != nil {
		t.Fatal(err)
	}
	close(gate.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	snap, err := c.Resolve(ctx, "AABBCCDD")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Member == nil || snap.Member.Status != models.StatusSuspended {
		t.Fatalf("resolution after completed status change served stale member: %+v", snap.Member)
	}
}
