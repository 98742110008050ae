package audit

import (
	"context"
	"sync"

	id "heimdall/pkg/domain"
)

// InMemorySink holds events in order of arrival. Used when the controller
// runs without external storage, and by tests.
type InMemorySink struct {
	mu     sync.RWMutex
	events []AccessEvent
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Append(_ context.Context, event AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListAll returns every recorded event, oldest first.
func (s *InMemorySink) ListAll(_ context.Context) ([]AccessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AccessEvent{}, s.events...), nil
}

// ListRecent returns the newest limit events, oldest first.
func (s *InMemorySink) ListRecent(_ context.Context, limit int) ([]AccessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.events) - limit
	if start < 0 {
		start = 0
	}
	return append([]AccessEvent{}, s.events[start:]...), nil
}

// ListByMember returns the member's events, oldest first.
func (s *InMemorySink) ListByMember(_ context.Context, memberID id.MemberID) ([]AccessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AccessEvent
	for _, event := range s.events {
		if event.MemberID != nil && *event.MemberID == memberID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *InMemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
