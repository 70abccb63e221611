package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"circlepot/internal/domain"
	"circlepot/internal/storage"
)

// ViewSnapshotStore is an in-memory implementation of storage.ViewSnapshotStore.
type ViewSnapshotStore struct {
	mu   sync.RWMutex
	data []*domain.ViewSnapshot
	ids  map[string]bool
}

// NewViewSnapshotStore creates a new in-memory snapshot store.
func NewViewSnapshotStore() *ViewSnapshotStore {
	return &ViewSnapshotStore{
		data: make([]*domain.ViewSnapshot, 0),
		ids:  make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.ViewSnapshotStore = (*ViewSnapshotStore)(nil)

// Insert appends a snapshot. Returns ErrDuplicateKey if ID exists.
func (s *ViewSnapshotStore) Insert(_ context.Context, snap *domain.ViewSnapshot) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[snap.ID] {
		return storage.ErrDuplicateKey
	}
	s.data = append(s.data, copySnapshot(snap))
	s.ids[snap.ID] = true
	return nil
}

// ListByCircle retrieves snapshots of a circle ordered by derived_at ASC.
func (s *ViewSnapshotStore) ListByCircle(_ context.Context, circleID string) ([]*domain.ViewSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ViewSnapshot
	for _, snap := range s.data {
		if snap.CircleID == circleID {
			result = append(result, copySnapshot(snap))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DerivedAt.Before(result[j].DerivedAt)
	})
	return result, nil
}

func copySnapshot(snap *domain.ViewSnapshot) *domain.ViewSnapshot {
	cp := *snap
	if snap.NetCollateral != nil {
		cp.NetCollateral = new(big.Int).Set(snap.NetCollateral)
	}
	if snap.PayoutAmount != nil {
		cp.PayoutAmount = new(big.Int).Set(snap.PayoutAmount)
	}
	return &cp
}
