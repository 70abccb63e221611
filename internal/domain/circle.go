package domain

import (
	"fmt"
	"math/big"
	"time"
)

// Frequency is the contribution cadence of a circle.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// String returns the string representation of Frequency.
func (f Frequency) String() string {
	return string(f)
}

// IsValid checks if the frequency is a valid value.
func (f Frequency) IsValid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly || f == FrequencyMonthly
}

// FrequencyFromCode maps the ledger enum ordinal to a Frequency.
func FrequencyFromCode(code int) (Frequency, error) {
	switch code {
	case 0:
		return FrequencyDaily, nil
	case 1:
		return FrequencyWeekly, nil
	case 2:
		return FrequencyMonthly, nil
	}
	return "", fmt.Errorf("unknown frequency code %d", code)
}

// Visibility controls who may discover and join a circle.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityPublic  Visibility = "PUBLIC"
)

// IsValid checks if the visibility is a valid value.
func (v Visibility) IsValid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// VisibilityFromCode maps the ledger enum ordinal to a Visibility.
func VisibilityFromCode(code int) (Visibility, error) {
	switch code {
	case 0:
		return VisibilityPrivate, nil
	case 1:
		return VisibilityPublic, nil
	}
	return "", fmt.Errorf("unknown visibility code %d", code)
}

// CircleState is the lifecycle phase of a circle.
type CircleState string

const (
	StatePending   CircleState = "PENDING"
	StateCreated   CircleState = "CREATED"
	StateVoting    CircleState = "VOTING"
	StateActive    CircleState = "ACTIVE"
	StateCompleted CircleState = "COMPLETED"
	StateDead      CircleState = "DEAD"
)

// String returns the string representation of CircleState.
func (s CircleState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s CircleState) IsValid() bool {
	switch s {
	case StatePending, StateCreated, StateVoting, StateActive, StateCompleted, StateDead:
		return true
	}
	return false
}

// Started reports whether the circle has passed its start vote.
func (s CircleState) Started() bool {
	return s == StateActive || s == StateCompleted
}

// StateFromCode maps the ledger enum ordinal to a CircleState.
func StateFromCode(code int) (CircleState, error) {
	switch code {
	case 0:
		return StatePending, nil
	case 1:
		return StateCreated, nil
	case 2:
		return StateVoting, nil
	case 3:
		return StateActive, nil
	case 4:
		return StateCompleted, nil
	case 5:
		return StateDead, nil
	}
	return "", fmt.Errorf("unknown circle state code %d", code)
}

// Circle is the mutable summary record of a circle as reported by the indexer.
// Corresponds to the circles table in PostgreSQL.
type Circle struct {
	ID                 string      // ledger circle id (decimal string)
	Creator            string      // normalized creator address
	Title              string      // display only
	ContributionAmount *big.Int    // per-round contribution, base units
	Frequency          Frequency   // DAILY | WEEKLY | MONTHLY
	MaxMembers         int         // member cap
	CurrentMembers     int         // members joined so far
	Visibility         Visibility  // PRIVATE | PUBLIC
	State              CircleState // nominal ledger state
	CreatedAt          time.Time   // creation block time
	StartedAt          time.Time   // zero until the circle starts
	CurrentRound       int         // >= 1
	YieldEnabled       bool
}

// Validate checks the summary invariants that do not depend on events.
func (c *Circle) Validate() error {
	if c.ID == "" {
		return NewInvariantViolation("circle_id", "circle id is empty")
	}
	if c.ContributionAmount == nil || c.ContributionAmount.Sign() < 0 {
		return NewInvariantViolation("contribution_amount", "circle %s has no valid contribution amount", c.ID)
	}
	if !c.Frequency.IsValid() {
		return NewInvariantViolation("frequency", "circle %s has unknown frequency %q", c.ID, c.Frequency)
	}
	if !c.State.IsValid() {
		return NewInvariantViolation("state", "circle %s has unknown state %q", c.ID, c.State)
	}
	if c.MaxMembers < 1 {
		return NewInvariantViolation("max_members", "circle %s has max members %d", c.ID, c.MaxMembers)
	}
	if c.CurrentMembers > c.MaxMembers {
		return NewInvariantViolation("member_cap", "circle %s has %d members, cap is %d", c.ID, c.CurrentMembers, c.MaxMembers)
	}
	if c.CurrentRound < 1 {
		return NewInvariantViolation("current_round", "circle %s has current round %d", c.ID, c.CurrentRound)
	}
	return nil
}
