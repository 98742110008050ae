package models

import (
	"time"

	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
)

// AuthMethod selects the optional secondary authentication a tag carries in
// addition to its UID. UIDs are clonable; secondary auth is what makes a tag
// more than a serial number.
type AuthMethod int32

const (
	// AuthNone means the UID alone identifies the tag.
	AuthNone AuthMethod = iota
	// AuthSecret means the reader supplies a per-tag secret that must match
	// the stored hash.
	AuthSecret
)

// Tag is a physical NFC credential known to the controller.
//
// Invariants:
//   - ID is canonical (see domain.ParseTagID) and unique in the store
//   - at most one live (non-revoked) binding to a member at a time
//   - revocation is terminal; a revoked identifier is never rebound, so the
//     audit history of a physical tag stays unambiguous
type Tag struct {
	ID       id.TagID
	MemberID id.MemberID // nil UUID when unbound
	IssuedAt time.Time

	Revoked   bool
	RevokedAt *time.Time

	AuthMethod AuthMethod
	// AuthSecretHash is a bcrypt hash of the tag's secondary secret.
	// Empty when AuthMethod is AuthNone.
	AuthSecretHash []byte
}

// IsBound reports whether the tag currently belongs to a member.
func (t *Tag) IsBound() bool {
	return !t.MemberID.IsNil()
}

// CanBind checks whether the tag may be bound to the given member.
// Rebinding to the same member is a no-op and allowed; a live binding to a
// different member is a conflict; a revoked tag is never rebound.
func (t *Tag) CanBind(memberID id.MemberID) error {
	if t.Revoked {
		return sentinel.ErrConflict
	}
	if t.IsBound() && t.MemberID != memberID {
		return sentinel.ErrConflict
	}
	return nil
}

// ApplyBinding assigns the tag to a member. Call CanBind first.
func (t *Tag) ApplyBinding(memberID id.MemberID, now time.Time) {
	t.MemberID = memberID
	if t.IssuedAt.IsZero() {
		t.IssuedAt = now
	}
}

// ApplyRevocation marks the tag revoked. Idempotent: revoking an already
// revoked tag keeps the original revocation timestamp.
func (t *Tag) ApplyRevocation(now time.Time) {
	if t.Revoked {
		return
	}
	t.Revoked = true
	t.RevokedAt = &now
}

// Clone returns a deep copy so cache snapshots never alias store state.
func (t *Tag) Clone() *Tag {
	if t == nil {
		return nil
	}
	cp := *t
	if t.RevokedAt != nil {
		ts := *t.RevokedAt
		cp.RevokedAt = &ts
	}
	if t.AuthSecretHash != nil {
		cp.AuthSecretHash = append([]byte(nil), t.AuthSecretHash...)
	}
	return &cp
}
