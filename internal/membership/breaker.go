package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/circuit"
	"heimdall/pkg/platform/sentinel"
)

// BreakerSource guards a Source with a circuit breaker so a dead membership
// system does not cost every member in a sweep a full connection timeout.
// While the circuit is open, one probe fetch at a time goes through to
// detect recovery; the rest fail fast as unavailable, which downstream
// records as a refresh failure like any other outage.
type BreakerSource struct {
	inner   Source
	breaker *circuit.Breaker
	logger  *slog.Logger
	probing atomic.Bool
}

func WithBreaker(inner Source, breaker *circuit.Breaker, logger *slog.Logger) *BreakerSource {
	return &BreakerSource{inner: inner, breaker: breaker, logger: logger}
}

func (s *BreakerSource) FetchStatus(ctx context.Context, memberID id.MemberID) (StatusReport, error) {
	if s.breaker.IsOpen() {
		if !s.probing.CompareAndSwap(false, true) {
			return StatusReport{}, fmt.Errorf("%w: membership circuit %s open", sentinel.ErrUnavailable, s.breaker.Name())
		}
		defer s.probing.Store(false)
	}

	report, err := s.inner.FetchStatus(ctx, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			if _, change := s.breaker.RecordFailure(); change.Opened {
				s.logger.WarnContext(ctx, "membership circuit opened", "breaker", s.breaker.Name())
			}
		}
		return StatusReport{}, err
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "membership circuit closed", "breaker", s.breaker.Name())
	}
	return report, nil
}
