package domain

import (
	"errors"
	"math/big"
	"time"
)

// EventKind identifies a domain event variant.
type EventKind string

const (
	KindMemberJoined          EventKind = "MemberJoined"
	KindPositionAssigned      EventKind = "PositionAssigned"
	KindVotingInitiated       EventKind = "VotingInitiated"
	KindVoteCast              EventKind = "VoteCast"
	KindVoteExecuted          EventKind = "VoteExecuted"
	KindContributionMade      EventKind = "ContributionMade"
	KindPayoutDistributed     EventKind = "PayoutDistributed"
	KindLatePaymentRecorded   EventKind = "LatePaymentRecorded"
	KindMemberForfeited       EventKind = "MemberForfeited"
	KindCollateralWithdrawn   EventKind = "CollateralWithdrawn"
	KindCollateralReturned    EventKind = "CollateralReturned"
	KindDeadCircleFeeDeducted EventKind = "DeadCircleFeeDeducted"
	KindMemberInvited         EventKind = "MemberInvited"
)

// AllEventKinds lists every kind in a fixed order.
var AllEventKinds = []EventKind{
	KindMemberJoined,
	KindPositionAssigned,
	KindVotingInitiated,
	KindVoteCast,
	KindVoteExecuted,
	KindContributionMade,
	KindPayoutDistributed,
	KindLatePaymentRecorded,
	KindMemberForfeited,
	KindCollateralWithdrawn,
	KindCollateralReturned,
	KindDeadCircleFeeDeducted,
	KindMemberInvited,
}

// IsValid checks if the kind is a known variant.
func (k EventKind) IsValid() bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// VoteChoice is the ballot option of a VoteCast event.
type VoteChoice string

const (
	VoteStart    VoteChoice = "START"
	VoteWithdraw VoteChoice = "WITHDRAW"
)

// Event is a single immutable ledger event. The set of implementations is
// closed: every variant lives in this file.
type Event interface {
	Meta() EventMeta
	Kind() EventKind
	// Subject returns the user the event is about (member, voter, recipient).
	Subject() string
	// Validate reports a missing or out-of-range required field.
	Validate() error
}

// EventMeta carries the fields shared by every variant.
// ID is derived from the source log position, so two events with equal IDs
// are the same event.
type EventMeta struct {
	ID          string    // idhash.ComputeEventID(tx_hash, log_index)
	CircleID    string    // circle the event belongs to
	TxHash      string    // emitting transaction
	BlockNumber uint64    // ledger block
	LogIndex    uint32    // position within the block
	Timestamp   time.Time // block time
}

// Meta returns the shared event fields.
func (m EventMeta) Meta() EventMeta {
	return m
}

func (m EventMeta) validate() error {
	switch {
	case m.ID == "":
		return errors.New("missing event id")
	case m.CircleID == "":
		return errors.New("missing circle id")
	case m.Timestamp.IsZero():
		return errors.New("missing timestamp")
	}
	return nil
}

func requireSubject(field, value string) error {
	if value == "" {
		return errors.New("missing " + field)
	}
	return nil
}

func requireRound(round int) error {
	if round < 1 {
		return errors.New("round must be >= 1")
	}
	return nil
}

func requireAmount(field string, v *big.Int, positive bool) error {
	if v == nil {
		return errors.New("missing " + field)
	}
	if v.Sign() < 0 || (positive && v.Sign() == 0) {
		return errors.New(field + " out of range")
	}
	return nil
}

// MemberJoined records a user joining a circle.
type MemberJoined struct {
	EventMeta
	Member string
}

func (e MemberJoined) Kind() EventKind { return KindMemberJoined }
func (e MemberJoined) Subject() string { return e.Member }

func (e MemberJoined) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	return requireSubject("member", e.Member)
}

// PositionAssigned records the payout order slot of a member once the circle starts.
type PositionAssigned struct {
	EventMeta
	Member   string
	Position int
}

func (e PositionAssigned) Kind() EventKind { return KindPositionAssigned }
func (e PositionAssigned) Subject() string { return e.Member }

func (e PositionAssigned) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("member", e.Member); err != nil {
		return err
	}
	if e.Position < 1 {
		return errors.New("position must be >= 1")
	}
	return nil
}

// VotingInitiated records the start of the start-or-withdraw vote.
type VotingInitiated struct {
	EventMeta
	VotingStart time.Time // zero means the block time
	VotingEnd   time.Time // informational; the window is fixed at two days
}

func (e VotingInitiated) Kind() EventKind { return KindVotingInitiated }
func (e VotingInitiated) Subject() string { return "" }

func (e VotingInitiated) Validate() error {
	return e.validate()
}

// StartedAt returns when the voting window opened.
func (e VotingInitiated) StartedAt() time.Time {
	if e.VotingStart.IsZero() {
		return e.Timestamp
	}
	return e.VotingStart
}

// VoteCast records one member's ballot.
type VoteCast struct {
	EventMeta
	Voter  string
	Choice VoteChoice
}

func (e VoteCast) Kind() EventKind { return KindVoteCast }
func (e VoteCast) Subject() string { return e.Voter }

func (e VoteCast) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("voter", e.Voter); err != nil {
		return err
	}
	if e.Choice != VoteStart && e.Choice != VoteWithdraw {
		return errors.New("unknown vote choice")
	}
	return nil
}

// VoteExecuted records the tally of the start vote.
type VoteExecuted struct {
	EventMeta
	CircleStarted bool
	StartVotes    int
	WithdrawVotes int
}

func (e VoteExecuted) Kind() EventKind { return KindVoteExecuted }
func (e VoteExecuted) Subject() string { return "" }

func (e VoteExecuted) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.StartVotes < 0 || e.WithdrawVotes < 0 {
		return errors.New("negative vote tally")
	}
	return nil
}

// ContributionMade records a member paying into a round.
type ContributionMade struct {
	EventMeta
	Member string
	Round  int
	Amount *big.Int
}

func (e ContributionMade) Kind() EventKind { return KindContributionMade }
func (e ContributionMade) Subject() string { return e.Member }

func (e ContributionMade) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("member", e.Member); err != nil {
		return err
	}
	if err := requireRound(e.Round); err != nil {
		return err
	}
	return requireAmount("amount", e.Amount, true)
}

// PayoutDistributed records the pot being paid to a round's recipient.
type PayoutDistributed struct {
	EventMeta
	Recipient string
	Round     int
	Amount    *big.Int
}

func (e PayoutDistributed) Kind() EventKind { return KindPayoutDistributed }
func (e PayoutDistributed) Subject() string { return e.Recipient }

func (e PayoutDistributed) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("recipient", e.Recipient); err != nil {
		return err
	}
	if err := requireRound(e.Round); err != nil {
		return err
	}
	return requireAmount("amount", e.Amount, true)
}

// LatePaymentRecorded records a late fee charged against a member's collateral.
type LatePaymentRecorded struct {
	EventMeta
	Member string
	Round  int
	Fee    *big.Int
}

func (e LatePaymentRecorded) Kind() EventKind { return KindLatePaymentRecorded }
func (e LatePaymentRecorded) Subject() string { return e.Member }

func (e LatePaymentRecorded) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("member", e.Member); err != nil {
		return err
	}
	if err := requireRound(e.Round); err != nil {
		return err
	}
	return requireAmount("fee", e.Fee, false)
}

// MemberForfeited records a late member's contribution and penalty being taken
// from collateral.
type MemberForfeited struct {
	EventMeta
	Forfeiter string
	Member    string
	Round     int
	Deduction *big.Int
}

func (e MemberForfeited) Kind() EventKind { return KindMemberForfeited }
func (e MemberForfeited) Subject() string { return e.Member }

func (e MemberForfeited) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("member", e.Member); err != nil {
		return err
	}
	if err := requireRound(e.Round); err != nil {
		return err
	}
	return requireAmount("deduction", e.Deduction, false)
}

// CollateralWithdrawn records a member pulling collateral out of a dead circle.
type CollateralWithdrawn struct {
	EventMeta
	Member string
	Amount *big.Int
}

func (e CollateralWithdrawn) Kind() EventKind { return KindCollateralWithdrawn }
func (e CollateralWithdrawn) Subject() string { return e.Member }

func (e CollateralWithdrawn) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("member", e.Member); err != nil {
		return err
	}
	return requireAmount("amount", e.Amount, false)
}

// CollateralReturned records collateral released back to a member on completion.
type CollateralReturned struct {
	EventMeta
	Member string
	Amount *big.Int
}

func (e CollateralReturned) Kind() EventKind { return KindCollateralReturned }
func (e CollateralReturned) Subject() string { return e.Member }

func (e CollateralReturned) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("member", e.Member); err != nil {
		return err
	}
	return requireAmount("amount", e.Amount, false)
}

// DeadCircleFeeDeducted records the creator fee charged when a circle dies.
type DeadCircleFeeDeducted struct {
	EventMeta
	Creator string
	Amount  *big.Int
}

func (e DeadCircleFeeDeducted) Kind() EventKind { return KindDeadCircleFeeDeducted }
func (e DeadCircleFeeDeducted) Subject() string { return e.Creator }

func (e DeadCircleFeeDeducted) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("creator", e.Creator); err != nil {
		return err
	}
	return requireAmount("amount", e.Amount, false)
}

// MemberInvited records an invitation to a private circle.
type MemberInvited struct {
	EventMeta
	Inviter string
	Invitee string
}

func (e MemberInvited) Kind() EventKind { return KindMemberInvited }
func (e MemberInvited) Subject() string { return e.Invitee }

func (e MemberInvited) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireSubject("inviter", e.Inviter); err != nil {
		return err
	}
	return requireSubject("invitee", e.Invitee)
}
