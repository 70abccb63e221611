package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"circlepot/internal/domain"
	"circlepot/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventSQL = `
	INSERT INTO circle_events (
		id, circle_id, kind, tx_hash, block_number, log_index, block_time,
		subject, counterparty, round, amount, position,
		choice, circle_started, start_votes, withdraw_votes, voting_start, voting_end
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11::text::numeric, $12,
		$13, $14, $15, $16, $17, $18
	)
	ON CONFLICT (id) DO NOTHING
`

// Append inserts events in one transaction. Rows whose id already exists are
// skipped; the returned count covers new rows only.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	for _, e := range events {
		if e == nil || e.Meta().ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { observe("append_events", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range events {
		r := domain.ToRecord(e)
		batch.Queue(insertEventSQL,
			r.ID, r.CircleID, string(r.Kind), r.TxHash, int64(r.BlockNumber), int32(r.LogIndex), r.Timestamp,
			r.Subject, r.Counterparty, r.Round, amountText(r.Amount), r.Position,
			string(r.Choice), r.CircleStarted, r.StartVotes, r.WithdrawVotes, nullTime(r.VotingStart), nullTime(r.VotingEnd),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert event: %w", err)
		}
		n += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

// ListByCircle retrieves all events of a circle ordered by (block_number, log_index).
// Rows that no longer decode into a valid event are returned as an error.
func (s *EventStore) ListByCircle(ctx context.Context, circleID string) (events []domain.Event, err error) {
	start := time.Now()
	defer func() { observe("list_events", start, err) }()

	query := `
		SELECT id, circle_id, kind, tx_hash, block_number, log_index, block_time,
			subject, counterparty, round, amount::text, position,
			choice, circle_started, start_votes, withdraw_votes, voting_start, voting_end
		FROM circle_events
		WHERE circle_id = $1
		ORDER BY block_number ASC, log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, circleID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			r           domain.EventRecord
			kind        string
			choice      string
			block       int64
			logIndex    int32
			amount      *string
			votingStart *time.Time
			votingEnd   *time.Time
		)
		err := rows.Scan(
			&r.ID, &r.CircleID, &kind, &r.TxHash, &block, &logIndex, &r.Timestamp,
			&r.Subject, &r.Counterparty, &r.Round, &amount, &r.Position,
			&choice, &r.CircleStarted, &r.StartVotes, &r.WithdrawVotes, &votingStart, &votingEnd,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		r.Kind = domain.EventKind(kind)
		r.Choice = domain.VoteChoice(choice)
		r.BlockNumber = uint64(block)
		r.LogIndex = uint32(logIndex)
		r.Timestamp = r.Timestamp.UTC()
		r.VotingStart = timeOrZero(votingStart)
		r.VotingEnd = timeOrZero(votingEnd)
		if amount != nil {
			v, ok := new(big.Int).SetString(*amount, 10)
			if !ok {
				return nil, fmt.Errorf("event %s: bad amount %q", r.ID, *amount)
			}
			r.Amount = v
		}

		e, err := domain.FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func amountText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
