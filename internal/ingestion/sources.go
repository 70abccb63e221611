// Package ingestion keeps the local event log and circle summaries in sync
// with the indexer and records a derived view snapshot after every sync.
package ingestion

import (
	"context"

	"circlepot/internal/domain"
	"circlepot/internal/indexer"
)

// Source provides circle summaries and raw event rows.
// Per-circle and per-user queries overlap; the store and the ledger view
// absorb the duplicates.
type Source interface {
	// Circle returns the current summary of a circle.
	Circle(ctx context.Context, circleID string) (*domain.Circle, error)

	// CircleEvents returns every event row of one circle. Rows fetched before
	// a failure are returned together with the error.
	CircleEvents(ctx context.Context, circleID string) ([]indexer.RawEvent, error)

	// UserEvents returns event rows whose subject is user, across circles.
	UserEvents(ctx context.Context, user string) ([]indexer.RawEvent, error)
}

// Notifier streams live event notifications.
type Notifier interface {
	Subscribe(ctx context.Context, circleIDs []string) (<-chan indexer.Notification, error)
}

// Compile-time interface checks.
var (
	_ Source   = (*indexer.Client)(nil)
	_ Notifier = (*indexer.Subscriber)(nil)
)
