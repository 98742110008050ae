package access

// Decision is the binary outcome handed to the hardware actuator.
type Decision string

const (
	DecisionGrant Decision = "grant"
	DecisionDeny  Decision = "deny"
)

// Reason explains a decision. Every resolution carries exactly one reason,
// so the audit trail never needs to reconstruct why a door opened.
type Reason string

const (
	// Grant reasons
	ReasonOK      Reason = "OK"
	ReasonOKStale Reason = "OK_STALE"

	// Deny reasons
	ReasonUnknownTag         Reason = "UNKNOWN_TAG"
	ReasonTagRevoked         Reason = "TAG_REVOKED"
	ReasonUnboundTag         Reason = "UNBOUND_TAG"
	ReasonMembershipInactive Reason = "MEMBERSHIP_INACTIVE"
	ReasonMemberBanned       Reason = "MEMBER_BANNED"
	ReasonStatusUnverifiable Reason = "STATUS_UNVERIFIABLE"
	ReasonTagAuthFailed      Reason = "TAG_AUTH_FAILED"
	ReasonTimeout            Reason = "TIMEOUT"
)

// Verdict is the result of one access resolution.
type Verdict struct {
	Decision Decision
	Reason   Reason
	// Stale marks that the decision relied on cached membership data rather
	// than a freshly verified status.
	Stale bool
}

// Granted reports whether the door should open.
func (v Verdict) Granted() bool {
	return v.Decision == DecisionGrant
}

func grant(reason Reason, stale bool) Verdict {
	return Verdict{Decision: DecisionGrant, Reason: reason, Stale: stale}
}

func deny(reason Reason, stale bool) Verdict {
	return Verdict{Decision: DecisionDeny, Reason: reason, Stale: stale}
}
