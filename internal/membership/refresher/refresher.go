// Package refresher periodically re-verifies every member's eligibility
// against the membership-truth source, so statuses served from the local
// store keep an honest age even when no tag is being presented.
package refresher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"heimdall/internal/identity/models"
	"heimdall/internal/membership"
	"heimdall/internal/membership/metrics"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
)

const sweepConcurrency = 8

// Lister enumerates the members to sweep.
type Lister interface {
	ListMemberIDs(ctx context.Context) ([]id.MemberID, error)
}

// Applier records sweep outcomes. Satisfied by the identity service, which
// also handles cache invalidation.
type Applier interface {
	ApplyStatusReport(ctx context.Context, memberID id.MemberID, status models.MemberStatus, asOf, now time.Time) error
	ApplyStatusFailure(ctx context.Context, memberID id.MemberID, now time.Time) error
}

// Refresher sweeps all known members at a fixed interval.
type Refresher struct {
	lister   Lister
	applier  Applier
	source   membership.Source
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(lister Lister, applier Applier, source membership.Source, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Refresher {
	return &Refresher{
		lister:   lister,
		applier:  applier,
		source:   source,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx is
// cancelled. A failed sweep is logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "refresh sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce refreshes every member's status once. Per-member source failures
// are recorded as unavailable-fallback and do not abort the sweep; only a
// failure to enumerate members or to write back an outcome is returned.
func (r *Refresher) SweepOnce(ctx context.Context) error {
	start := time.Now()

	ids, err := r.lister.ListMemberIDs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, memberID := range ids {
		g.Go(func() error {
			return r.refreshOne(gctx, memberID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.metrics.ObserveSweep(time.Since(start).Seconds())
	r.logger.InfoContext(ctx, "refresh sweep complete",
		"members", len(ids),
		"elapsed", time.Since(start),
	)
	return nil
}

func (r *Refresher) refreshOne(ctx context.Context, memberID id.MemberID) error {
	now := time.Now()

	report, err := r.source.FetchStatus(ctx, memberID)
	switch {
	case err == nil:
		r.metrics.IncRefresh("verified")
		return r.applier.ApplyStatusReport(ctx, memberID, report.Status, report.AsOf, now)
	case errors.Is(err, sentinel.ErrUnavailable):
		r.metrics.IncRefresh("unavailable")
		r.logger.WarnContext(ctx, "membership source unavailable",
			"member_id", memberID.String(),
			"error", err,
		)
		return r.applier.ApplyStatusFailure(ctx, memberID, now)
	default:
		return err
	}
}
