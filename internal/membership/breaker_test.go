package membership_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heimdall/internal/identity/models"
	"heimdall/internal/membership"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/circuit"
	"heimdall/pkg/platform/sentinel"
)

type scriptedSource struct {
	calls int
	fail  bool
}

func (s *scriptedSource) FetchStatus(context.Context, id.MemberID) (membership.StatusReport, error) {
	s.calls++
	if s.fail {
		return membership.StatusReport{}, fmt.Errorf("%w: upstream down", sentinel.ErrUnavailable)
	}
	return membership.StatusReport{Status: models.StatusActive, AsOf: time.Now()}, nil
}

func TestBreakerSourceOpensAndFailsFast(t *testing.T) {
	inner := &scriptedSource{fail: true}
	source := membership.WithBreaker(inner, circuit.New("membership", circuit.WithFailureThreshold(2)),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	memberID := id.NewMemberID()

	_, err := source.FetchStatus(ctx, memberID)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	_, err = source.FetchStatus(ctx, memberID)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, 2, inner.calls)

	// Circuit is open now; calls become probes. With the probe slot free
	// each sequential call still reaches the upstream.
	_, err = source.FetchStatus(ctx, memberID)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, 3, inner.calls)

	// Recovery: one successful probe closes the circuit again.
	inner.fail = false
	report, err := source.FetchStatus(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, report.Status)

	report, err = source.FetchStatus(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, report.Status)
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerSourcePassesThroughWhenClosed(t *testing.T) {
	inner := &scriptedSource{}
	source := membership.WithBreaker(inner, circuit.New("membership"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	report, err := source.FetchStatus(context.Background(), id.NewMemberID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, report.Status)
	assert.Equal(t, 1, inner.calls)
}
