package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"circlepot/internal/domain"
	"circlepot/internal/storage"
)

// ViewSnapshotStore implements storage.ViewSnapshotStore using ClickHouse.
type ViewSnapshotStore struct {
	conn *Conn
}

// NewViewSnapshotStore creates a new ViewSnapshotStore.
func NewViewSnapshotStore(conn *Conn) *ViewSnapshotStore {
	return &ViewSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ViewSnapshotStore = (*ViewSnapshotStore)(nil)

// Insert appends a snapshot. Returns ErrDuplicateKey if ID exists.
// MergeTree does not enforce uniqueness, so the check is explicit.
func (s *ViewSnapshotStore) Insert(ctx context.Context, snap *domain.ViewSnapshot) (err error) {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("%w: snapshot id %q", storage.ErrInvalidInput, snap.ID)
	}

	start := time.Now()
	defer func() { observe("insert_snapshot", start, err) }()

	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO view_snapshots (
			id, circle_id, viewer, phase, round, member_count, late_count,
			primary_action, net_collateral, payout_amount, warning_count, derived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		id, snap.CircleID, snap.Viewer, string(snap.Phase),
		uint32(snap.Round), uint32(snap.MemberCount), uint32(snap.LateCount),
		string(snap.PrimaryAction), intText(snap.NetCollateral), intText(snap.PayoutAmount),
		uint32(snap.WarningCount), snap.DerivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert view snapshot: %w", err)
	}
	return nil
}

// ListByCircle retrieves snapshots of a circle ordered by derived_at ASC.
func (s *ViewSnapshotStore) ListByCircle(ctx context.Context, circleID string) (result []*domain.ViewSnapshot, err error) {
	start := time.Now()
	defer func() { observe("list_snapshots", start, err) }()

	query := `
		SELECT id, circle_id, viewer, phase, round, member_count, late_count,
			primary_action, net_collateral, payout_amount, warning_count, derived_at
		FROM view_snapshots
		WHERE circle_id = ?
		ORDER BY derived_at ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, circleID)
	if err != nil {
		return nil, fmt.Errorf("query view snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                   uuid.UUID
			snap                 domain.ViewSnapshot
			phase, action        string
			round, members, late uint32
			warnings             uint32
			net, payout          string
		)
		if err := rows.Scan(
			&id, &snap.CircleID, &snap.Viewer, &phase, &round, &members, &late,
			&action, &net, &payout, &warnings, &snap.DerivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan view snapshot: %w", err)
		}

		snap.ID = id.String()
		snap.Phase = domain.CircleState(phase)
		snap.PrimaryAction = domain.ActionKind(action)
		snap.Round = int(round)
		snap.MemberCount = int(members)
		snap.LateCount = int(late)
		snap.WarningCount = int(warnings)
		snap.DerivedAt = snap.DerivedAt.UTC()
		if snap.NetCollateral, err = parseInt(net); err != nil {
			return nil, fmt.Errorf("snapshot %s net collateral: %w", snap.ID, err)
		}
		if snap.PayoutAmount, err = parseInt(payout); err != nil {
			return nil, fmt.Errorf("snapshot %s payout amount: %w", snap.ID, err)
		}
		result = append(result, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate view snapshots: %w", err)
	}
	return result, nil
}

func (s *ViewSnapshotStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM view_snapshots WHERE id = ?`, id)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func intText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return v, nil
}
