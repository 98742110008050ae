package access

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"heimdall/internal/access/cache"
	"heimdall/internal/access/metrics"
	"heimdall/internal/audit"
	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
	"heimdall/pkg/requestcontext"
)

// Recorder stamps presentation outcomes onto member records. Satisfied by
// the identity store; stamping is best-effort and never affects a verdict.
type Recorder interface {
	ExecuteMember(ctx context.Context, memberID id.MemberID, validate func(*models.Member) error, mutate func(*models.Member)) (*models.Member, error)
}

// Auditor receives one event per resolution. Satisfied by audit.Worker.
type Auditor interface {
	Emit(ctx context.Context, event audit.AccessEvent)
}

// Resolver turns a raw reader-supplied identifier into a verdict within a
// hard deadline. The reader is standing at a door: a late answer is a wrong
// answer, so deadline expiry denies with TIMEOUT rather than waiting out a
// slow store.
type Resolver struct {
	cache    cache.Cache
	recorder Recorder
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics

	timeout time.Duration
	grace   time.Duration
}

func NewResolver(c cache.Cache, recorder Recorder, auditor Auditor, timeout, grace time.Duration, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		cache:    c,
		recorder: recorder,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
		timeout:  timeout,
		grace:    grace,
	}
}

type resolution struct {
	verdict  Verdict
	memberID *id.MemberID
}

// ResolveAccess decides whether the door opens for a presented identifier.
// secret is the tag's secondary credential when the reader supplies one;
// it is only consulted for tags bound with secondary auth.
//
// The verdict is always returned, never an error: every failure mode maps
// to a deny reason, and the audit event is emitted regardless of outcome.
func (r *Resolver) ResolveAccess(ctx context.Context, raw, secret string) Verdict {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := requestcontext.Now(ctx)

	tagID, err := id.ParseTagID(raw)
	if err != nil {
		// Malformed identifiers are indistinguishable from unknown tags to
		// the person at the door, and the distinction is in the log.
		r.logger.WarnContext(ctx, "unparseable tag identifier", "raw", raw, "error", err)
		return r.finish(ctx, start, now, "", resolution{verdict: deny(ReasonUnknownTag, false)})
	}

	// Snapshot fetch and bcrypt comparison both cost real time; run them
	// off-path so deadline expiry can answer immediately.
	results := make(chan resolution, 1)
	go func() {
		results <- r.resolve(ctx, tagID, secret, now)
	}()

	select {
	case <-ctx.Done():
		return r.finish(ctx, start, now, tagID, resolution{verdict: deny(ReasonTimeout, false)})
	case res := <-results:
		return r.finish(ctx, start, now, tagID, res)
	}
}

func (r *Resolver) resolve(ctx context.Context, tagID id.TagID, secret string, now time.Time) resolution {
	snap, err := r.cache.Resolve(ctx, tagID)
	if err != nil {
		r.logger.ErrorContext(ctx, "snapshot resolve failed", "tag_id", tagID.String(), "error", err)
		return resolution{verdict: deny(ReasonStatusUnverifiable, false)}
	}

	res := resolution{}
	if snap.Tag != nil && snap.Tag.IsBound() {
		memberID := snap.Tag.MemberID
		res.memberID = &memberID
	}

	if snap.Tag != nil && !snap.Tag.Revoked && snap.Tag.AuthMethod == models.AuthSecret {
		if bcrypt.CompareHashAndPassword(snap.Tag.AuthSecretHash, []byte(secret)) != nil {
			res.verdict = deny(ReasonTagAuthFailed, false)
			return res
		}
	}

	res.verdict = Evaluate(snap.Tag, snap.Member, now, r.grace)
	return res
}

// finish records the outcome: audit event, metrics, log line, and the
// member's entry or attempt stamp. None of these can change the verdict.
func (r *Resolver) finish(ctx context.Context, start, now time.Time, tagID id.TagID, res resolution) Verdict {
	verdict := res.verdict

	event := audit.NewAccessEvent(now)
	event.TagID = tagID
	event.MemberID = res.memberID
	event.Decision = string(verdict.Decision)
	event.Reason = string(verdict.Reason)
	event.Stale = verdict.Stale
	// WithoutCancel: the resolve deadline may have expired by now and must
	// not suppress the audit record.
	r.auditor.Emit(context.WithoutCancel(ctx), event)

	r.metrics.IncResolution(string(verdict.Decision), string(verdict.Reason))
	r.metrics.ObserveDuration(time.Since(start).Seconds())

	r.stamp(context.WithoutCancel(ctx), now, res)

	r.logger.InfoContext(ctx, "access resolved",
		"tag_id", tagID.String(),
		"decision", verdict.Decision,
		"reason", verdict.Reason,
		"stale", verdict.Stale,
		"elapsed", time.Since(start),
	)
	return verdict
}

func (r *Resolver) stamp(ctx context.Context, now time.Time, res resolution) {
	if res.memberID == nil {
		return
	}

	mutate := func(m *models.Member) { m.ApplyDeniedAttempt(now) }
	if res.verdict.Granted() {
		mutate = func(m *models.Member) { m.ApplyEntry(now) }
	}

	if _, err := r.recorder.ExecuteMember(ctx, *res.memberID, nil, mutate); err != nil {
		r.logger.WarnContext(ctx, "presentation stamp failed",
			"member_id", res.memberID.String(),
			"error", err,
		)
	}
}
