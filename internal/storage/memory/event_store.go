package memory

import (
	"context"
	"sort"
	"sync"

	"circlepot/internal/domain"
	"circlepot/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu       sync.RWMutex
	byCircle map[string][]domain.Event
	ids      map[string]bool
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		byCircle: make(map[string][]domain.Event),
		ids:      make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append adds events, skipping IDs already stored. Nothing is stored if any
// event is nil or has an empty ID.
func (s *EventStore) Append(_ context.Context, events []domain.Event) (int, error) {
	for _, e := range events {
		if e == nil || e.Meta().ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range events {
		m := e.Meta()
		if s.ids[m.ID] {
			continue
		}
		c, err := clone(e)
		if err != nil {
			return inserted, err
		}
		s.byCircle[m.CircleID] = append(s.byCircle[m.CircleID], c)
		s.ids[m.ID] = true
		inserted++
	}
	return inserted, nil
}

// ListByCircle retrieves all events of a circle ordered by (block_number, log_index).
func (s *EventStore) ListByCircle(_ context.Context, circleID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Event, 0, len(s.byCircle[circleID]))
	for _, e := range s.byCircle[circleID] {
		c, err := clone(e)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].Meta(), result[j].Meta()
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})
	return result, nil
}

// clone deep-copies an event so callers never share amount pointers with the store.
func clone(e domain.Event) (domain.Event, error) {
	return domain.FromRecord(domain.ToRecord(e))
}
