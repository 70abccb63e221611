package domain

import (
	"errors"
	"fmt"
)

// Error classes of the derivation core.
var (
	// ErrDataIntegrity marks a malformed or partial event. It is never
	// returned from derivation; the event is dropped and a warning recorded.
	ErrDataIntegrity = errors.New("data integrity warning")

	// ErrPrecondition is returned when a round or voting concept is requested
	// for a circle in a phase where it does not apply.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInvariantViolation indicates a corrupted event feed or summary.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Precondition failures.
var (
	ErrNotStarted       = fmt.Errorf("%w: circle not started", ErrPrecondition)
	ErrNoActiveRound    = fmt.Errorf("%w: no active round", ErrPrecondition)
	ErrVotingNotStarted = fmt.Errorf("%w: voting not initiated", ErrPrecondition)
)

// IntegrityWarning describes an event dropped from a ledger view.
type IntegrityWarning struct {
	EventID string
	Kind    EventKind
	Reason  string
}

func (w *IntegrityWarning) Error() string {
	return fmt.Sprintf("%s: %s event %s: %s", ErrDataIntegrity, w.Kind, w.EventID, w.Reason)
}

func (w *IntegrityWarning) Unwrap() error {
	return ErrDataIntegrity
}

// InvariantViolation describes a broken feed invariant.
type InvariantViolation struct {
	Rule   string
	Detail string
}

// NewInvariantViolation builds an InvariantViolation with a formatted detail.
func NewInvariantViolation(rule, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("%s (%s): %s", ErrInvariantViolation, v.Rule, v.Detail)
}

func (v *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}
