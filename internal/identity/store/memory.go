package store

import (
	"context"
	"fmt"
	"sync"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
	"heimdall/pkg/requestcontext"
)

// InMemory implements Store for development and tests. A single mutex
// serializes mutations, which is stronger than the per-record requirement;
// the Postgres store is the one that relaxes this to row-level locking.
// Bindings do not survive a restart.
type InMemory struct {
	mu      sync.RWMutex
	tags    map[id.TagID]*models.Tag
	members map[id.MemberID]*models.Member
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		tags:    make(map[id.TagID]*models.Tag),
		members: make(map[id.MemberID]*models.Member),
	}
}

func (s *InMemory) LookupTag(_ context.Context, tagID id.TagID) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tag := s.tags[tagID]
	if tag == nil {
		return nil, fmt.Errorf("tag %s: %w", tagID, sentinel.ErrNotFound)
	}
	return tag.Clone(), nil
}

func (s *InMemory) LookupMember(_ context.Context, memberID id.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member := s.members[memberID]
	if member == nil {
		return nil, fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	return member.Clone(), nil
}

func (s *InMemory) BindTag(ctx context.Context, params BindParams) (*models.Tag, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	tag := s.tags[params.TagID]
	if tag == nil {
		tag = &models.Tag{ID: params.TagID}
	}
	if err := tag.CanBind(params.MemberID); err != nil {
		return nil, fmt.Errorf("bind tag %s: %w", params.TagID, err)
	}

	tag.ApplyBinding(params.MemberID, now)
	tag.AuthMethod = params.AuthMethod
	tag.AuthSecretHash = append([]byte(nil), params.AuthSecretHash...)
	s.tags[params.TagID] = tag

	return tag.Clone(), nil
}

func (s *InMemory) RevokeTag(ctx context.Context, tagID id.TagID) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	tag := s.tags[tagID]
	if tag == nil {
		return fmt.Errorf("revoke tag %s: %w", tagID, sentinel.ErrNotFound)
	}
	tag.ApplyRevocation(now)
	return nil
}

func (s *InMemory) UpsertMember(ctx context.Context, params UpsertMemberParams) (*models.Member, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	member := s.members[params.ID]
	if member == nil {
		member = &models.Member{
			ID:        params.ID,
			CreatedAt: now,
		}
		s.members[params.ID] = member
	}

	if params.DisplayName != "" {
		member.DisplayName = params.DisplayName
	}
	if params.Manager != nil {
		member.Manager = *params.Manager
	}
	member.Status = params.Status
	member.StatusSource = params.Source
	member.StatusVerifiedAt = params.VerifiedAt
	member.UpdatedAt = now

	return member.Clone(), nil
}

func (s *InMemory) ExecuteMember(_ context.Context, memberID id.MemberID, validate func(*models.Member) error, mutate func(*models.Member)) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	member := s.members[memberID]
	if member == nil {
		return nil, fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	if validate != nil {
		if err := validate(member); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(member)
	}
	return member.Clone(), nil
}

func (s *InMemory) ListActiveTagsForMember(_ context.Context, memberID id.MemberID) ([]*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tags []*models.Tag
	for _, tag := range s.tags {
		if tag.MemberID == memberID && !tag.Revoked {
			tags = append(tags, tag.Clone())
		}
	}
	return tags, nil
}

func (s *InMemory) ListMemberIDs(_ context.Context) ([]id.MemberID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]id.MemberID, 0, len(s.members))
	for memberID := range s.members {
		ids = append(ids, memberID)
	}
	return ids, nil
}
