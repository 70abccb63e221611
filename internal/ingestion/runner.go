package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"circlepot/internal/domain"
	"circlepot/internal/eligibility"
	"circlepot/internal/indexer"
	"circlepot/internal/observability"
	"circlepot/internal/storage"
)

// Sync statuses reported to metrics.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// ErrNotifierClosed is returned by Run when the live notification stream ends.
var ErrNotifierClosed = errors.New("notification channel closed")

// Runner periodically pulls tracked circles from the indexer, persists
// events and summaries idempotently, and snapshots the creator's view.
type Runner struct {
	source    Source
	notifier  Notifier
	events    storage.EventStore
	circles   storage.CircleStore
	snapshots storage.ViewSnapshotStore
	engine    *eligibility.Engine
	tracked   []string
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source    Source
	Notifier  Notifier // optional; nil disables live recomputation
	Events    storage.EventStore
	Circles   storage.CircleStore
	Snapshots storage.ViewSnapshotStore // optional
	Engine    *eligibility.Engine
	Tracked   []string      // circle ids to keep in sync
	Interval  time.Duration // Default: 1m
	Now       func() time.Time
	Logger    zerolog.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	engine := opts.Engine
	if engine == nil {
		engine = eligibility.NewEngine(eligibility.Options{Now: now, Logger: opts.Logger})
	}

	return &Runner{
		source:    opts.Source,
		notifier:  opts.Notifier,
		events:    opts.Events,
		circles:   opts.Circles,
		snapshots: opts.Snapshots,
		engine:    engine,
		tracked:   append([]string(nil), opts.Tracked...),
		interval:  interval,
		now:       now,
		logger:    opts.Logger.With().Str("component", "ingestion").Logger(),
	}
}

// SyncResult contains statistics from syncing one circle.
type SyncResult struct {
	CircleID string
	Fetched  int  // decoded events from all queries, duplicates included
	Stored   int  // events new to the store
	Warnings int  // rows dropped while decoding
	Partial  bool // at least one event query failed
	View     *domain.CircleView
}

// Run syncs every tracked circle immediately, then on each tick and on each
// live notification. It blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var notifications <-chan indexer.Notification
	if r.notifier != nil && len(r.tracked) > 0 {
		ch, err := r.notifier.Subscribe(ctx, r.tracked)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		notifications = ch
	}

	r.logger.Info().
		Strs("circles", r.tracked).
		Dur("interval", r.interval).
		Bool("live", notifications != nil).
		Msg("ingestion runner started")

	r.SyncAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("ingestion runner stopping")
			return ctx.Err()

		case <-ticker.C:
			r.SyncAll(ctx)

		case n, ok := <-notifications:
			if !ok {
				return ErrNotifierClosed
			}
			if err := r.HandleNotification(ctx, n); err != nil {
				r.logger.Warn().Err(err).Str("circle_id", n.CircleID).Msg("live update failed")
			}
		}
	}
}

// SyncAll syncs every tracked circle. Failures are logged and do not stop
// the remaining circles.
func (r *Runner) SyncAll(ctx context.Context) {
	for _, id := range r.tracked {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.SyncCircle(ctx, id); err != nil {
			r.logger.Error().Err(err).Str("circle_id", id).Msg("circle sync failed")
		}
	}
}

// SyncCircle pulls one circle from the indexer, persists what arrived and
// records a snapshot of the creator's view.
func (r *Runner) SyncCircle(ctx context.Context, circleID string) (result *SyncResult, err error) {
	start := time.Now()
	result = &SyncResult{CircleID: circleID}
	logger := r.logger.With().Str("circle_id", circleID).Logger()

	defer func() {
		status := StatusOK
		switch {
		case err != nil:
			status = StatusError
		case result.Partial:
			status = StatusPartial
		}
		observability.RecordSync(status, result.Fetched, result.Stored, time.Since(start).Seconds(), r.now().Unix())
	}()

	circle, err := r.summary(ctx, logger, circleID)
	if err != nil {
		return result, err
	}

	// Both queries run even if one fails; whatever arrived is still stored.
	circleRows, err := r.source.CircleEvents(ctx, circleID)
	if err != nil {
		result.Partial = true
		logger.Warn().Err(err).Int("rows", len(circleRows)).Msg("circle events query failed")
	}
	userRows, err := r.source.UserEvents(ctx, circle.Creator)
	if err != nil {
		result.Partial = true
		logger.Warn().Err(err).Int("rows", len(userRows)).Msg("creator events query failed")
	}

	circleEvents := r.decode(logger, circleRows, result)
	userEvents := r.decode(logger, filterCircle(userRows, circleID), result)

	fetched := make([]domain.Event, 0, len(circleEvents)+len(userEvents))
	fetched = append(fetched, circleEvents...)
	fetched = append(fetched, userEvents...)
	result.Fetched = len(fetched)

	if len(fetched) > 0 {
		stored, err := r.events.Append(ctx, fetched)
		if err != nil {
			return result, fmt.Errorf("append events: %w", err)
		}
		result.Stored = stored
	}

	if err := r.circles.Upsert(ctx, circle); err != nil {
		return result, fmt.Errorf("upsert circle: %w", err)
	}

	view, err := r.recompute(ctx, *circle, circleEvents, userEvents)
	if err != nil {
		return result, err
	}
	result.View = view

	logger.Debug().
		Int("fetched", result.Fetched).
		Int("stored", result.Stored).
		Int("warnings", result.Warnings).
		Bool("partial", result.Partial).
		Str("phase", string(view.Phase)).
		Msg("circle synced")
	return result, nil
}

// HandleNotification stores live events and recomputes the circle from the
// stored summary without refetching it.
func (r *Runner) HandleNotification(ctx context.Context, n indexer.Notification) error {
	for _, w := range n.Warnings {
		r.warn(r.logger, w)
	}
	if len(n.Events) > 0 {
		if _, err := r.events.Append(ctx, n.Events); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
	}

	circle, err := r.circles.Get(ctx, n.CircleID)
	if errors.Is(err, storage.ErrNotFound) {
		_, err = r.SyncCircle(ctx, n.CircleID)
		return err
	}
	if err != nil {
		return fmt.Errorf("load circle: %w", err)
	}

	_, err = r.recompute(ctx, *circle, n.Events)
	return err
}

// summary fetches the circle summary, falling back to the stored copy when
// the indexer is unavailable.
func (r *Runner) summary(ctx context.Context, logger zerolog.Logger, circleID string) (*domain.Circle, error) {
	circle, err := r.source.Circle(ctx, circleID)
	if err == nil {
		return circle, nil
	}

	stored, storeErr := r.circles.Get(ctx, circleID)
	if storeErr != nil {
		return nil, fmt.Errorf("fetch circle: %w", err)
	}
	logger.Warn().Err(err).Msg("circle summary unavailable, using stored copy")
	return stored, nil
}

// recompute derives the creator's view from the stored log merged with the
// freshly fetched batches, then snapshots it.
func (r *Runner) recompute(ctx context.Context, circle domain.Circle, fresh ...[]domain.Event) (*domain.CircleView, error) {
	stored, err := r.events.ListByCircle(ctx, circle.ID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	batches := append([][]domain.Event{stored}, fresh...)
	view, err := r.engine.DeriveFromBatches(circle, batches, circle.Creator)
	if err != nil {
		return nil, fmt.Errorf("derive view: %w", err)
	}

	if r.snapshots != nil {
		snap := domain.SnapshotOf(view, r.now())
		snap.ID = uuid.NewString()
		if err := r.snapshots.Insert(ctx, snap); err != nil {
			return view, fmt.Errorf("insert snapshot: %w", err)
		}
	}
	return view, nil
}

func (r *Runner) decode(logger zerolog.Logger, rows []indexer.RawEvent, result *SyncResult) []domain.Event {
	events, warnings := indexer.DecodeAll(rows)
	for _, w := range warnings {
		r.warn(logger, w)
	}
	result.Warnings += len(warnings)
	return events
}

func (r *Runner) warn(logger zerolog.Logger, w *domain.IntegrityWarning) {
	observability.RecordIntegrityWarning(string(w.Kind))
	logger.Warn().
		Str("event_id", w.EventID).
		Str("event_kind", string(w.Kind)).
		Str("reason", w.Reason).
		Msg("dropped malformed event row")
}

// filterCircle keeps the rows of one circle from a cross-circle user query.
func filterCircle(rows []indexer.RawEvent, circleID string) []indexer.RawEvent {
	var out []indexer.RawEvent
	for _, row := range rows {
		if row.CircleID == circleID {
			out = append(out, row)
		}
	}
	return out
}
