package storage

import (
	"context"

	"circlepot/internal/domain"
)

// EventStore provides access to circle_events storage.
type EventStore interface {
	// Append adds events, ignoring any whose ID already exists.
	// Returns the number of events actually inserted.
	Append(ctx context.Context, events []domain.Event) (int, error)

	// ListByCircle retrieves all events of a circle in ledger order
	// (block_number, log_index).
	ListByCircle(ctx context.Context, circleID string) ([]domain.Event, error)
}

// CircleStore provides access to the circles summary table.
type CircleStore interface {
	// Upsert inserts or replaces the summary of a circle.
	Upsert(ctx context.Context, c *domain.Circle) error

	// Get retrieves a circle by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, circleID string) (*domain.Circle, error)

	// List retrieves all circles ordered by ID.
	List(ctx context.Context) ([]*domain.Circle, error)
}

// ViewSnapshotStore provides access to view_snapshots storage.
type ViewSnapshotStore interface {
	// Insert appends a snapshot. Returns ErrDuplicateKey if ID exists.
	Insert(ctx context.Context, s *domain.ViewSnapshot) error

	// ListByCircle retrieves snapshots of a circle ordered by derived_at ASC.
	ListByCircle(ctx context.Context, circleID string) ([]*domain.ViewSnapshot, error)
}
