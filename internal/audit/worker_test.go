package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heimdall/internal/audit"
	id "heimdall/pkg/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvent(t *testing.T, decision, reason string) audit.AccessEvent {
	t.Helper()
	tagID, err := id.ParseTagID("04a22b9f11803c")
	require.NoError(t, err)

	event := audit.NewAccessEvent(time.Now())
	event.TagID = tagID
	event.Decision = decision
	event.Reason = reason
	return event
}

func TestWorkerDeliversToSink(t *testing.T) {
	sink := audit.NewInMemorySink()
	worker := audit.NewWorker(sink, 16, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	worker.Emit(ctx, newEvent(t, "deny", "TAG_REVOKED"))
	worker.Emit(ctx, newEvent(t, "grant", "OK"))

	require.Eventually(t, func() bool {
		events, err := sink.ListAll(context.Background())
		return err == nil && len(events) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	events, err := sink.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TAG_REVOKED", events[0].Reason)
	assert.Equal(t, "OK", events[1].Reason)
}

func TestWorkerFlushesQueuedEventsOnShutdown(t *testing.T) {
	sink := audit.NewInMemorySink()
	worker := audit.NewWorker(sink, 16, discardLogger(), nil)

	// Emit before Run so the events sit in the buffer when ctx is
	// already cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	for range 5 {
		worker.Emit(ctx, newEvent(t, "grant", "OK"))
	}
	cancel()

	require.ErrorIs(t, worker.Run(ctx), context.Canceled)

	events, err := sink.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestEmitNeverBlocksOnFullBuffer(t *testing.T) {
	sink := audit.NewInMemorySink()
	worker := audit.NewWorker(sink, 2, discardLogger(), nil)

	// Worker is not running; the buffer fills at 2 and further emits
	// must return immediately.
	ctx := context.Background()
	doneEmitting := make(chan struct{})
	go func() {
		defer close(doneEmitting)
		for range 100 {
			worker.Emit(ctx, newEvent(t, "deny", "UNKNOWN_TAG"))
		}
	}()

	select {
	case <-doneEmitting:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on full buffer")
	}
}

type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) Append(context.Context, audit.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("sink offline")
}

func TestWorkerSurvivesSinkFailures(t *testing.T) {
	sink := &failingSink{}
	worker := audit.NewWorker(sink, 16, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	for range 3 {
		worker.Emit(ctx, newEvent(t, "grant", "OK"))
	}

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.calls == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestInMemorySinkQueries(t *testing.T) {
	sink := audit.NewInMemorySink()
	ctx := context.Background()

	memberID := id.NewMemberID()
	withMember := newEvent(t, "grant", "OK")
	withMember.MemberID = &memberID

	require.NoError(t, sink.Append(ctx, newEvent(t, "deny", "UNKNOWN_TAG")))
	require.NoError(t, sink.Append(ctx, withMember))
	require.NoError(t, sink.Append(ctx, newEvent(t, "deny", "TIMEOUT")))

	byMember, err := sink.ListByMember(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, byMember, 1)
	assert.Equal(t, "OK", byMember[0].Reason)

	recent, err := sink.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "OK", recent[0].Reason)
	assert.Equal(t, "TIMEOUT", recent[1].Reason)
}
