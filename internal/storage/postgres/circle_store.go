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

// CircleStore implements storage.CircleStore using PostgreSQL.
type CircleStore struct {
	pool *Pool
}

// NewCircleStore creates a new CircleStore.
func NewCircleStore(pool *Pool) *CircleStore {
	return &CircleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CircleStore = (*CircleStore)(nil)

const selectCircleSQL = `
	SELECT id, creator, title, contribution_amount::text, frequency,
		max_members, current_members, visibility, state,
		created_at, started_at, current_round, yield_enabled
	FROM circles
`

// Upsert inserts or replaces the summary of a circle.
func (s *CircleStore) Upsert(ctx context.Context, c *domain.Circle) (err error) {
	if c == nil || c.ID == "" || c.ContributionAmount == nil {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { observe("upsert_circle", start, err) }()

	query := `
		INSERT INTO circles (
			id, creator, title, contribution_amount, frequency,
			max_members, current_members, visibility, state,
			created_at, started_at, current_round, yield_enabled, updated_at
		) VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			creator = EXCLUDED.creator,
			title = EXCLUDED.title,
			contribution_amount = EXCLUDED.contribution_amount,
			frequency = EXCLUDED.frequency,
			max_members = EXCLUDED.max_members,
			current_members = EXCLUDED.current_members,
			visibility = EXCLUDED.visibility,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at,
			started_at = EXCLUDED.started_at,
			current_round = EXCLUDED.current_round,
			yield_enabled = EXCLUDED.yield_enabled,
			updated_at = now()
	`

	_, err = s.pool.Exec(ctx, query,
		c.ID, c.Creator, c.Title, c.ContributionAmount.String(), string(c.Frequency),
		c.MaxMembers, c.CurrentMembers, string(c.Visibility), string(c.State),
		c.CreatedAt, nullTime(c.StartedAt), c.CurrentRound, c.YieldEnabled,
	)
	if err != nil {
		return fmt.Errorf("upsert circle: %w", err)
	}
	return nil
}

// Get retrieves a circle by ID. Returns ErrNotFound if not exists.
func (s *CircleStore) Get(ctx context.Context, circleID string) (c *domain.Circle, err error) {
	start := time.Now()
	defer func() { observe("get_circle", start, err) }()

	rows, err := s.pool.Query(ctx, selectCircleSQL+` WHERE id = $1`, circleID)
	if err != nil {
		return nil, fmt.Errorf("query circle: %w", err)
	}
	defer rows.Close()

	circles, err := scanCircles(rows)
	if err != nil {
		return nil, err
	}
	if len(circles) == 0 {
		return nil, storage.ErrNotFound
	}
	return circles[0], nil
}

// List retrieves all circles ordered by ID.
func (s *CircleStore) List(ctx context.Context) (circles []*domain.Circle, err error) {
	start := time.Now()
	defer func() { observe("list_circles", start, err) }()

	rows, err := s.pool.Query(ctx, selectCircleSQL+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query circles: %w", err)
	}
	defer rows.Close()

	return scanCircles(rows)
}

func scanCircles(rows pgx.Rows) ([]*domain.Circle, error) {
	var circles []*domain.Circle
	for rows.Next() {
		var (
			c          domain.Circle
			amount     string
			frequency  string
			visibility string
			state      string
			startedAt  *time.Time
		)
		err := rows.Scan(
			&c.ID, &c.Creator, &c.Title, &amount, &frequency,
			&c.MaxMembers, &c.CurrentMembers, &visibility, &state,
			&c.CreatedAt, &startedAt, &c.CurrentRound, &c.YieldEnabled,
		)
		if err != nil {
			return nil, fmt.Errorf("scan circle: %w", err)
		}

		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("circle %s: bad contribution amount %q", c.ID, amount)
		}
		c.ContributionAmount = v
		c.Frequency = domain.Frequency(frequency)
		c.Visibility = domain.Visibility(visibility)
		c.State = domain.CircleState(state)
		c.CreatedAt = c.CreatedAt.UTC()
		c.StartedAt = timeOrZero(startedAt)
		circles = append(circles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate circles: %w", err)
	}
	return circles, nil
}
