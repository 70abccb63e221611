// Package fixtures builds deterministic circles and event histories for tests
// and the deriveview CLI samples.
package fixtures

import (
	"fmt"
	"math/big"
	"time"

	"circlepot/internal/domain"
	"circlepot/internal/idhash"
	"circlepot/internal/policy"
)

// Addr returns a deterministic lower-case address for index n.
func Addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

// Units returns n whole tokens in base units.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), policy.TokenUnit)
}

// Circle returns a valid created circle with sensible defaults.
func Circle(id string, createdAt time.Time) domain.Circle {
	return domain.Circle{
		ID:                 id,
		Creator:            Addr(1),
		Title:              "fixture circle",
		ContributionAmount: Units(100),
		Frequency:          domain.FrequencyWeekly,
		MaxMembers:         5,
		CurrentMembers:     1,
		Visibility:         domain.VisibilityPrivate,
		State:              domain.StateCreated,
		CreatedAt:          createdAt,
		CurrentRound:       1,
	}
}

// Builder mints events with unique, ordered ledger positions.
type Builder struct {
	circleID string
	block    uint64
}

// NewBuilder creates a builder for circleID.
func NewBuilder(circleID string) *Builder {
	return &Builder{circleID: circleID, block: 1000}
}

// Meta allocates the next ledger position at time at.
func (b *Builder) Meta(at time.Time) domain.EventMeta {
	b.block++
	tx := fmt.Sprintf("0x%064x", b.block)
	return domain.EventMeta{
		ID:          idhash.ComputeEventID(tx, 0),
		CircleID:    b.circleID,
		TxHash:      tx,
		BlockNumber: b.block,
		LogIndex:    0,
		Timestamp:   at,
	}
}

func (b *Builder) Joined(member string, at time.Time) domain.MemberJoined {
	return domain.MemberJoined{EventMeta: b.Meta(at), Member: member}
}

func (b *Builder) Position(member string, pos int, at time.Time) domain.PositionAssigned {
	return domain.PositionAssigned{EventMeta: b.Meta(at), Member: member, Position: pos}
}

func (b *Builder) VotingInitiated(at time.Time) domain.VotingInitiated {
	return domain.VotingInitiated{EventMeta: b.Meta(at), VotingStart: at, VotingEnd: at.Add(policy.VotingPeriod)}
}

func (b *Builder) Vote(voter string, choice domain.VoteChoice, at time.Time) domain.VoteCast {
	return domain.VoteCast{EventMeta: b.Meta(at), Voter: voter, Choice: choice}
}

func (b *Builder) VoteExecuted(started bool, startVotes, withdrawVotes int, at time.Time) domain.VoteExecuted {
	return domain.VoteExecuted{EventMeta: b.Meta(at), CircleStarted: started, StartVotes: startVotes, WithdrawVotes: withdrawVotes}
}

func (b *Builder) Contribution(member string, round int, amount *big.Int, at time.Time) domain.ContributionMade {
	return domain.ContributionMade{EventMeta: b.Meta(at), Member: member, Round: round, Amount: amount}
}

func (b *Builder) Payout(recipient string, round int, amount *big.Int, at time.Time) domain.PayoutDistributed {
	return domain.PayoutDistributed{EventMeta: b.Meta(at), Recipient: recipient, Round: round, Amount: amount}
}

func (b *Builder) LatePayment(member string, round int, fee *big.Int, at time.Time) domain.LatePaymentRecorded {
	return domain.LatePaymentRecorded{EventMeta: b.Meta(at), Member: member, Round: round, Fee: fee}
}

func (b *Builder) Forfeit(forfeiter, member string, round int, deduction *big.Int, at time.Time) domain.MemberForfeited {
	return domain.MemberForfeited{EventMeta: b.Meta(at), Forfeiter: forfeiter, Member: member, Round: round, Deduction: deduction}
}

func (b *Builder) CollateralWithdrawn(member string, amount *big.Int, at time.Time) domain.CollateralWithdrawn {
	return domain.CollateralWithdrawn{EventMeta: b.Meta(at), Member: member, Amount: amount}
}

func (b *Builder) CollateralReturned(member string, amount *big.Int, at time.Time) domain.CollateralReturned {
	return domain.CollateralReturned{EventMeta: b.Meta(at), Member: member, Amount: amount}
}

func (b *Builder) DeadFee(creator string, amount *big.Int, at time.Time) domain.DeadCircleFeeDeducted {
	return domain.DeadCircleFeeDeducted{EventMeta: b.Meta(at), Creator: creator, Amount: amount}
}

func (b *Builder) Invited(inviter, invitee string, at time.Time) domain.MemberInvited {
	return domain.MemberInvited{EventMeta: b.Meta(at), Inviter: inviter, Invitee: invitee}
}

// Events converts typed variants to the Event interface.
func Events(events ...domain.Event) []domain.Event {
	return events
}
