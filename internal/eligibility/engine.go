package eligibility

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"circlepot/internal/domain"
	"circlepot/internal/ledgerview"
	"circlepot/internal/observability"
)

// Options configures an Engine.
type Options struct {
	// Now returns the evaluation time. Defaults to time.Now.
	Now func() time.Time
	// Logger receives data-integrity warnings and invariant violations.
	Logger zerolog.Logger
}

// Engine is the entry point for deriving circle views from raw ledger data.
// It holds no per-circle state and is safe for concurrent use.
type Engine struct {
	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		now:    opts.Now,
		logger: opts.Logger.With().Str("component", "eligibility").Logger(),
	}
}

// DeriveView builds the view of circle for viewer from an event history that
// may contain duplicates and arrive in any order.
func (e *Engine) DeriveView(circle domain.Circle, events []domain.Event, viewer string) (*domain.CircleView, error) {
	return e.DeriveFromBatches(circle, [][]domain.Event{events}, viewer)
}

// DeriveFromBatches is DeriveView over several overlapping query results,
// e.g. a per-circle query and a per-user query.
func (e *Engine) DeriveFromBatches(circle domain.Circle, batches [][]domain.Event, viewer string) (*domain.CircleView, error) {
	start := time.Now()
	logger := e.logger.With().Str("circle_id", circle.ID).Logger()

	view, err := ledgerview.Build(circle.ID, batches, ledgerview.WithLogger(logger))
	if err != nil {
		return nil, e.fail(logger, err)
	}
	for _, w := range view.Warnings() {
		observability.RecordIntegrityWarning(string(w.Kind))
	}

	v, err := Derive(circle, view, viewer, e.now())
	if err != nil {
		return nil, e.fail(logger, err)
	}

	observability.RecordViewDerived(string(v.Phase), string(v.PrimaryAction().Kind), time.Since(start).Seconds())
	return v, nil
}

func (e *Engine) fail(logger zerolog.Logger, err error) error {
	var iv *domain.InvariantViolation
	switch {
	case errors.As(err, &iv):
		observability.RecordDerivationError("invariant_violation")
		observability.RecordInvariantViolation(iv.Rule)
		logger.Error().Err(err).Str("rule", iv.Rule).Msg("event feed invariant violated")
	case errors.Is(err, domain.ErrPrecondition):
		observability.RecordDerivationError("precondition")
		logger.Debug().Err(err).Msg("derivation precondition failed")
	default:
		observability.RecordDerivationError("other")
		logger.Error().Err(err).Msg("derivation failed")
	}
	return err
}
