// Package membership defines the boundary to the system that actually knows
// who has paid: the membership-truth source. The controller never fabricates
// a status; everything it believes about eligibility came through this port.
package membership

import (
	"context"
	"time"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
)

// StatusReport is one verified eligibility fact from the upstream.
type StatusReport struct {
	Status models.MemberStatus
	// AsOf is the upstream's own verification time, which may trail the
	// fetch time when the upstream serves from its own cache.
	AsOf time.Time
}

// Source fetches membership status from the authoritative upstream.
//
// Implementations return sentinel.ErrUnavailable (optionally wrapped) when
// the upstream cannot be reached or answers garbage; they must respect ctx
// deadlines and may retry with backoff internally, but on exhaustion they
// report unavailability rather than block.
type Source interface {
	FetchStatus(ctx context.Context, memberID id.MemberID) (StatusReport, error)
}
