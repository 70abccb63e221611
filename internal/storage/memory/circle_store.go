package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"circlepot/internal/domain"
	"circlepot/internal/storage"
)

// CircleStore is an in-memory implementation of storage.CircleStore.
type CircleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Circle
}

// NewCircleStore creates a new in-memory circle store.
func NewCircleStore() *CircleStore {
	return &CircleStore{
		data: make(map[string]*domain.Circle),
	}
}

// Compile-time interface check.
var _ storage.CircleStore = (*CircleStore)(nil)

// Upsert inserts or replaces the summary of a circle.
func (s *CircleStore) Upsert(_ context.Context, c *domain.Circle) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[c.ID] = copyCircle(c)
	return nil
}

// Get retrieves a circle by ID. Returns ErrNotFound if not exists.
func (s *CircleStore) Get(_ context.Context, circleID string) (*domain.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[circleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyCircle(c), nil
}

// List retrieves all circles ordered by ID.
func (s *CircleStore) List(_ context.Context) ([]*domain.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Circle, 0, len(s.data))
	for _, c := range s.data {
		result = append(result, copyCircle(c))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func copyCircle(c *domain.Circle) *domain.Circle {
	cp := *c
	if c.ContributionAmount != nil {
		cp.ContributionAmount = new(big.Int).Set(c.ContributionAmount)
	}
	return &cp
}
