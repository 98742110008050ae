package access

import (
	"time"

	"heimdall/internal/identity/models"
)

// Evaluate applies the eligibility rule chain to a tag and its bound member.
// This is pure domain logic - no I/O, no side effects. Rules run in order
// and the first match wins; callers must not reorder or short-circuit them.
//
// grace is how long a previously verified status stays usable when the
// membership-truth source cannot re-confirm it. Past the window the
// controller fails closed.
func Evaluate(tag *models.Tag, member *models.Member, at time.Time, grace time.Duration) Verdict {
	// Rule 1: tag unknown to the store
	if tag == nil {
		return deny(ReasonUnknownTag, false)
	}

	// Rule 2: revocation is terminal and beats everything below
	if tag.Revoked {
		return deny(ReasonTagRevoked, false)
	}

	// Rule 3: issued but never bound, or binding target missing
	if !tag.IsBound() || member == nil {
		return deny(ReasonUnboundTag, false)
	}

	stale := member.StatusSource != models.SourceAuthoritative

	// Rule 4: confirmed inactive membership
	inactive := member.Status == models.StatusSuspended || member.Status == models.StatusExpired
	if inactive && member.StatusSource == models.SourceAuthoritative {
		return deny(ReasonMembershipInactive, false)
	}

	// Rule 4b: ban window covers members the upstream still reports active
	if member.IsBanned(at) {
		return deny(ReasonMemberBanned, stale)
	}

	// Rule 5: confirmed active, or active under a still-fresh local cache
	if member.Status == models.StatusActive {
		if member.StatusSource == models.SourceAuthoritative {
			return grant(ReasonOK, false)
		}
		if member.StatusSource == models.SourceCachedStale && member.StatusAge(at) <= grace {
			return grant(ReasonOK, true)
		}
	}

	// Rule 6: nothing verifiable to decide on
	if member.Status == models.StatusUnknown {
		return deny(ReasonStatusUnverifiable, stale)
	}
	if member.StatusSource == models.SourceUnavailableFallback && member.StatusAge(at) > grace {
		return deny(ReasonStatusUnverifiable, true)
	}

	// Rule 7: upstream unreachable but the last known status was active and
	// is still inside the grace window
	if member.Status == models.StatusActive && member.StatusAge(at) <= grace {
		return grant(ReasonOKStale, true)
	}

	// Fail closed: anything else is an unverifiable state.
	return deny(ReasonStatusUnverifiable, stale)
}
