// Package cache holds the bounded-staleness projection of the identity
// store that serves the door's hot path. Entries are reloaded from the store
// when they outlive the local freshness window, and store mutations
// invalidate them eagerly so a revoke is visible to the very next
// resolution.
package cache

import (
	"context"
	"time"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
)

// Snapshot is a non-owning copy of a tag and its bound member as of
// FetchedAt. Tag is nil when the identifier is unknown to the store; Member
// is nil when the tag is unbound.
type Snapshot struct {
	Tag       *models.Tag
	Member    *models.Member
	FetchedAt time.Time
}

// Cache serves tag resolutions without touching the store's persistent
// medium on the hot path.
//
// A member snapshot whose status has not been re-verified within the
// configured status freshness is served with its source downgraded to
// cached-stale, so the evaluator can never mistake an aged status for a
// confirmed one.
type Cache interface {
	// Resolve returns the snapshot for a tag, reloading from the identity
	// store when the cached entry is absent or older than the freshness
	// window. Unknown tags resolve to a snapshot with a nil Tag, not an
	// error; errors are store faults only.
	Resolve(ctx context.Context, tagID id.TagID) (Snapshot, error)

	// InvalidateTag drops the entry for a tag. Called by the identity
	// service after every tag mutation, before the mutation returns.
	InvalidateTag(ctx context.Context, tagID id.TagID) error

	// InvalidateMember drops every entry whose snapshot involves the member.
	InvalidateMember(ctx context.Context, memberID id.MemberID) error
}

// Loader is the slice of the identity store the cache reloads from.
type Loader interface {
	LookupTag(ctx context.Context, tagID id.TagID) (*models.Tag, error)
	LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error)
}

// downgradeStale flips an authoritative member status to cached-stale once
// it has outlived the status freshness window. Operates on the snapshot
// copy, never on store state.
func downgradeStale(member *models.Member, now time.Time, statusFreshness time.Duration) {
	if member == nil {
		return
	}
	if member.StatusSource == models.SourceAuthoritative && member.StatusAge(now) > statusFreshness {
		member.StatusSource = models.SourceCachedStale
	}
}
