// Package audit records every access resolution as an append-only event
// stream. Events describe what was decided and why; they are never updated
// or deleted, and a recording failure never changes a verdict.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "heimdall/pkg/domain"
)

// AccessEvent is one resolved tag presentation.
type AccessEvent struct {
	ID        uuid.UUID
	Timestamp time.Time

	TagID id.TagID
	// MemberID is nil for presentations of unknown or unbound tags.
	MemberID *id.MemberID

	Decision string
	Reason   string
	// Stale marks grants served from an unverified membership status.
	Stale bool
}

// NewAccessEvent stamps identity and time onto an event.
func NewAccessEvent(at time.Time) AccessEvent {
	return AccessEvent{ID: uuid.New(), Timestamp: at}
}

// Sink persists access events, append-only.
type Sink interface {
	Append(ctx context.Context, event AccessEvent) error
}
