package models

import (
	"time"

	id "heimdall/pkg/domain"
)

// MemberStatus is the membership eligibility state as reported by the
// membership-truth source. The controller never fabricates a status locally;
// StatusUnknown is an explicit value, not a nil.
type MemberStatus string

const (
	StatusActive    MemberStatus = "active"
	StatusSuspended MemberStatus = "suspended"
	StatusExpired   MemberStatus = "expired"
	StatusUnknown   MemberStatus = "unknown"
)

// Valid reports whether s is one of the enumerated statuses.
func (s MemberStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired, StatusUnknown:
		return true
	}
	return false
}

// StatusSource records where the current status value came from, so the
// evaluator can distinguish "confirmed active" from "assumed active because
// the upstream is down".
type StatusSource string

const (
	// SourceAuthoritative: fetched from the membership-truth source.
	SourceAuthoritative StatusSource = "authoritative"
	// SourceCachedStale: carried over from an earlier authoritative fetch;
	// the local freshness window has lapsed but the value is still usable.
	SourceCachedStale StatusSource = "cached-stale"
	// SourceUnavailableFallback: the last refresh attempt failed; the value
	// is the previous status with its age still growing.
	SourceUnavailableFallback StatusSource = "unavailable-fallback"
)

// Member is a person with access intent. Created on first reference, never
// hard-deleted; eligibility changes are soft status transitions.
type Member struct {
	ID          id.MemberID
	DisplayName string

	Status           MemberStatus
	StatusSource     StatusSource
	StatusVerifiedAt time.Time

	// Manager members may drive the admin API (bind/revoke/list).
	Manager bool

	// BanUntil closes the door to this member until the given instant,
	// regardless of membership status. Nil means no ban.
	BanUntil *time.Time
	// LastAttempt is the last denied presentation of any of this member's tags.
	LastAttempt *time.Time

	LastEnter *time.Time
	LastLeave *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusAge is how long ago the status was last verified against the
// membership-truth source.
func (m *Member) StatusAge(now time.Time) time.Duration {
	return now.Sub(m.StatusVerifiedAt)
}

// IsBanned reports whether the member's ban window covers now.
func (m *Member) IsBanned(now time.Time) bool {
	return m.BanUntil != nil && now.Before(*m.BanUntil)
}

// ApplyVerifiedStatus records a successful fetch from the membership-truth
// source. asOf is the upstream's own verification time, which may trail now.
func (m *Member) ApplyVerifiedStatus(status MemberStatus, asOf, now time.Time) {
	m.Status = status
	m.StatusSource = SourceAuthoritative
	m.StatusVerifiedAt = asOf
	m.UpdatedAt = now
}

// ApplyRefreshFailure records an unreachable membership-truth source. The
// previous status stands with its age still growing; only the source marker
// changes, so the evaluator can see the value was not re-confirmed.
func (m *Member) ApplyRefreshFailure(now time.Time) {
	m.StatusSource = SourceUnavailableFallback
	m.UpdatedAt = now
}

// ApplyDeniedAttempt stamps a failed presentation of one of the member's tags.
func (m *Member) ApplyDeniedAttempt(now time.Time) {
	m.LastAttempt = &now
	m.UpdatedAt = now
}

// ApplyEntry stamps a granted presentation.
func (m *Member) ApplyEntry(now time.Time) {
	m.LastEnter = &now
	m.UpdatedAt = now
}

// ApplyExit stamps a departure reported by the hardware side.
func (m *Member) ApplyExit(now time.Time) {
	m.LastLeave = &now
	m.UpdatedAt = now
}

// Clone returns a deep copy so cache snapshots never alias store state.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	cp := *m
	cp.BanUntil = cloneTime(m.BanUntil)
	cp.LastAttempt = cloneTime(m.LastAttempt)
	cp.LastEnter = cloneTime(m.LastEnter)
	cp.LastLeave = cloneTime(m.LastLeave)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := *t
	return &ts
}
