// Package ledgerview merges overlapping event query results for one circle
// into a deduplicated, deterministically ordered, kind-partitioned view.
package ledgerview

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"circlepot/internal/domain"
)

// View is an immutable, deduplicated event history of one circle.
// Build always returns a new View; callers never patch one in place.
type View struct {
	circleID string
	all      []domain.Event
	byKind   map[domain.EventKind][]domain.Event
	warnings []*domain.IntegrityWarning
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	logger zerolog.Logger
}

// WithLogger routes data-integrity warnings to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// Build validates, deduplicates and orders the union of batches.
//
// Malformed events and events of another circle are dropped and recorded as
// warnings. Two different payloads under one id, or two position assignments
// for one member, are invariant violations and fail the build.
func Build(circleID string, batches [][]domain.Event, opts ...Option) (*View, error) {
	cfg := buildConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	byID := make(map[string]domain.Event)
	var warnings []*domain.IntegrityWarning

	for _, batch := range batches {
		for _, e := range batch {
			if e == nil {
				continue
			}
			if err := e.Validate(); err != nil {
				warnings = append(warnings, &domain.IntegrityWarning{
					EventID: e.Meta().ID,
					Kind:    e.Kind(),
					Reason:  err.Error(),
				})
				continue
			}
			meta := e.Meta()
			if meta.CircleID != circleID {
				warnings = append(warnings, &domain.IntegrityWarning{
					EventID: meta.ID,
					Kind:    e.Kind(),
					Reason:  fmt.Sprintf("belongs to circle %s", meta.CircleID),
				})
				continue
			}

			if existing, ok := byID[meta.ID]; ok {
				if !sameEvent(existing, e) {
					return nil, domain.NewInvariantViolation("event_identity",
						"event %s delivered with two different payloads", meta.ID)
				}
				continue
			}
			byID[meta.ID] = e
		}
	}

	v := &View{
		circleID: circleID,
		all:      make([]domain.Event, 0, len(byID)),
		byKind:   make(map[domain.EventKind][]domain.Event),
		warnings: sortWarnings(dedupWarnings(warnings)),
	}
	for _, e := range byID {
		v.all = append(v.all, e)
	}
	SortEvents(v.all)
	for _, e := range v.all {
		v.byKind[e.Kind()] = append(v.byKind[e.Kind()], e)
	}

	for _, w := range v.warnings {
		cfg.logger.Warn().
			Str("circle_id", circleID).
			Str("event_id", w.EventID).
			Str("event_kind", string(w.Kind)).
			Str("reason", w.Reason).
			Msg("dropped malformed event")
	}

	if err := v.checkPositions(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *View) checkPositions() error {
	byMember := make(map[string]domain.PositionAssigned)
	byPosition := make(map[int]string)
	for _, e := range v.byKind[domain.KindPositionAssigned] {
		pa := e.(domain.PositionAssigned)
		if prev, ok := byMember[pa.Member]; ok {
			return domain.NewInvariantViolation("position_assignment",
				"member %s assigned twice in circle %s (events %s, %s)", pa.Member, v.circleID, prev.ID, pa.ID)
		}
		if holder, ok := byPosition[pa.Position]; ok {
			return domain.NewInvariantViolation("position_collision",
				"position %d assigned to %s and %s in circle %s", pa.Position, holder, pa.Member, v.circleID)
		}
		byMember[pa.Member] = pa
		byPosition[pa.Position] = pa.Member
	}
	return nil
}

func dedupWarnings(ws []*domain.IntegrityWarning) []*domain.IntegrityWarning {
	seen := make(map[domain.IntegrityWarning]bool)
	out := make([]*domain.IntegrityWarning, 0, len(ws))
	for _, w := range ws {
		if seen[*w] {
			continue
		}
		seen[*w] = true
		out = append(out, w)
	}
	return out
}

func sortWarnings(ws []*domain.IntegrityWarning) []*domain.IntegrityWarning {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].EventID != ws[j].EventID {
			return ws[i].EventID < ws[j].EventID
		}
		if ws[i].Kind != ws[j].Kind {
			return ws[i].Kind < ws[j].Kind
		}
		return ws[i].Reason < ws[j].Reason
	})
	return ws
}

// CircleID returns the circle the view describes.
func (v *View) CircleID() string {
	return v.circleID
}

// Len returns the number of distinct events.
func (v *View) Len() int {
	return len(v.all)
}

// All returns every event in ledger order.
func (v *View) All() []domain.Event {
	return append([]domain.Event(nil), v.all...)
}

// Events returns events of one kind in ledger order.
func (v *View) Events(kind domain.EventKind) []domain.Event {
	return append([]domain.Event(nil), v.byKind[kind]...)
}

// Warnings returns the integrity warnings recorded while building.
func (v *View) Warnings() []*domain.IntegrityWarning {
	return append([]*domain.IntegrityWarning(nil), v.warnings...)
}
