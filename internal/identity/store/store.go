package store

import (
	"context"
	"time"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
)

// BindParams carries everything needed to issue a tag to a member.
type BindParams struct {
	TagID    id.TagID
	MemberID id.MemberID

	AuthMethod models.AuthMethod
	// AuthSecretHash is the bcrypt hash of the tag's secondary secret;
	// empty for AuthNone.
	AuthSecretHash []byte
}

// UpsertMemberParams creates a member on first reference or refreshes its
// eligibility facts. DisplayName is only applied when non-empty so a status
// refresh never erases the name.
type UpsertMemberParams struct {
	ID          id.MemberID
	DisplayName string

	Status     models.MemberStatus
	Source     models.StatusSource
	VerifiedAt time.Time

	// Manager is applied only when non-nil so status refreshes cannot
	// silently drop admin rights.
	Manager *bool
}

// Store is the system of record for tags, members, and eligibility facts.
//
// Mutating operations are atomic with respect to each other: no partial
// binding is ever visible, and operations on the same record are mutually
// exclusive. Reads observe a consistent snapshot; returned values are copies
// the caller owns.
//
// All lookups return sentinel.ErrNotFound for unknown IDs and wrap
// sentinel.ErrStorage for persistent-medium faults, in which case prior
// state is intact.
type Store interface {
	LookupTag(ctx context.Context, tagID id.TagID) (*models.Tag, error)
	LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error)

	// BindTag issues a tag to a member, creating the tag record on first
	// issuance. Returns sentinel.ErrConflict if the tag holds a live binding
	// to a different member or has been revoked (revocation is terminal).
	BindTag(ctx context.Context, params BindParams) (*models.Tag, error)

	// RevokeTag marks a tag revoked. Idempotent; sentinel.ErrNotFound if the
	// tag was never issued.
	RevokeTag(ctx context.Context, tagID id.TagID) error

	UpsertMember(ctx context.Context, params UpsertMemberParams) (*models.Member, error)

	// ExecuteMember runs validate then mutate on the member under the
	// record's write lock, so read-modify-write cycles cannot interleave.
	// A validate error aborts without mutating. Returns the post-mutation
	// snapshot.
	ExecuteMember(ctx context.Context, memberID id.MemberID, validate func(*models.Member) error, mutate func(*models.Member)) (*models.Member, error)

	// ListActiveTagsForMember returns the member's live (non-revoked) tags,
	// for revocation-on-suspension workflows.
	ListActiveTagsForMember(ctx context.Context, memberID id.MemberID) ([]*models.Tag, error)

	// ListMemberIDs returns every member known to the store, for the
	// background status refresher sweep.
	ListMemberIDs(ctx context.Context) ([]id.MemberID, error)
}
