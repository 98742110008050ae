package audit

import (
	"context"
	"log/slog"
	"time"

	"heimdall/internal/audit/metrics"
)

const appendTimeout = 5 * time.Second

// Worker decouples verdict latency from sink latency: Emit never blocks the
// resolution path, and a slow or failing sink costs events (counted), not
// door openings.
type Worker struct {
	sink    Sink
	inbox   chan AccessEvent
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewWorker(sink Sink, buffer int, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		sink:    sink,
		inbox:   make(chan AccessEvent, buffer),
		logger:  logger,
		metrics: m,
	}
}

// Emit queues an event for recording. When the buffer is full the event is
// dropped and counted; the caller's verdict is already decided and must not
// wait on storage.
func (w *Worker) Emit(ctx context.Context, event AccessEvent) {
	select {
	case w.inbox <- event:
	default:
		w.metrics.IncDropped()
		w.logger.ErrorContext(ctx, "audit buffer full, event dropped",
			"event_id", event.ID.String(),
			"tag_id", event.TagID.String(),
			"reason", event.Reason,
		)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes whatever is
// already queued. Append failures are logged and counted, never fatal.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(event)
		}
	}
}

func (w *Worker) flush() {
	for {
		select {
		case event := <-w.inbox:
			w.append(event)
		default:
			return
		}
	}
}

func (w *Worker) append(event AccessEvent) {
	// Fresh context: the worker's own shutdown must not cancel an
	// in-flight write.
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := w.sink.Append(ctx, event); err != nil {
		w.metrics.IncFailed()
		w.logger.ErrorContext(ctx, "audit append failed",
			"event_id", event.ID.String(),
			"error", err,
		)
		return
	}
	w.metrics.IncAppended()
}
