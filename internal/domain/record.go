package domain

import (
	"math/big"
	"time"
)

// EventRecord is the flat storage and transport shape of an Event.
// Corresponds to the circle_events table in PostgreSQL. Fields not used by
// a kind stay at their zero value.
type EventRecord struct {
	Kind        EventKind
	ID          string
	CircleID    string
	TxHash      string
	BlockNumber uint64
	LogIndex    uint32
	Timestamp   time.Time

	Subject      string   // member | voter | recipient | creator | invitee
	Counterparty string   // forfeiter | inviter
	Round        int      // 0 when not applicable
	Amount       *big.Int // amount | fee | deduction (nullable)
	Position     int      // PositionAssigned only

	Choice        VoteChoice // VoteCast only
	CircleStarted bool       // VoteExecuted only
	StartVotes    int        // VoteExecuted only
	WithdrawVotes int        // VoteExecuted only
	VotingStart   time.Time  // VotingInitiated only
	VotingEnd     time.Time  // VotingInitiated only
}

// ToRecord flattens an event.
func ToRecord(e Event) EventRecord {
	m := e.Meta()
	r := EventRecord{
		Kind:        e.Kind(),
		ID:          m.ID,
		CircleID:    m.CircleID,
		TxHash:      m.TxHash,
		BlockNumber: m.BlockNumber,
		LogIndex:    m.LogIndex,
		Timestamp:   m.Timestamp,
		Subject:     e.Subject(),
	}

	switch ev := e.(type) {
	case PositionAssigned:
		r.Position = ev.Position
	case VotingInitiated:
		r.VotingStart = ev.VotingStart
		r.VotingEnd = ev.VotingEnd
	case VoteCast:
		r.Choice = ev.Choice
	case VoteExecuted:
		r.CircleStarted = ev.CircleStarted
		r.StartVotes = ev.StartVotes
		r.WithdrawVotes = ev.WithdrawVotes
	case ContributionMade:
		r.Round = ev.Round
		r.Amount = cloneInt(ev.Amount)
	case PayoutDistributed:
		r.Round = ev.Round
		r.Amount = cloneInt(ev.Amount)
	case LatePaymentRecorded:
		r.Round = ev.Round
		r.Amount = cloneInt(ev.Fee)
	case MemberForfeited:
		r.Counterparty = ev.Forfeiter
		r.Round = ev.Round
		r.Amount = cloneInt(ev.Deduction)
	case CollateralWithdrawn:
		r.Amount = cloneInt(ev.Amount)
	case CollateralReturned:
		r.Amount = cloneInt(ev.Amount)
	case DeadCircleFeeDeducted:
		r.Amount = cloneInt(ev.Amount)
	case MemberInvited:
		r.Counterparty = ev.Inviter
	}
	return r
}

// FromRecord builds the typed variant for a record and validates it.
// A failure is an *IntegrityWarning.
func FromRecord(r EventRecord) (Event, error) {
	meta := EventMeta{
		ID:          r.ID,
		CircleID:    r.CircleID,
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		LogIndex:    r.LogIndex,
		Timestamp:   r.Timestamp,
	}

	var e Event
	switch r.Kind {
	case KindMemberJoined:
		e = MemberJoined{EventMeta: meta, Member: r.Subject}
	case KindPositionAssigned:
		e = PositionAssigned{EventMeta: meta, Member: r.Subject, Position: r.Position}
	case KindVotingInitiated:
		e = VotingInitiated{EventMeta: meta, VotingStart: r.VotingStart, VotingEnd: r.VotingEnd}
	case KindVoteCast:
		e = VoteCast{EventMeta: meta, Voter: r.Subject, Choice: r.Choice}
	case KindVoteExecuted:
		e = VoteExecuted{EventMeta: meta, CircleStarted: r.CircleStarted, StartVotes: r.StartVotes, WithdrawVotes: r.WithdrawVotes}
	case KindContributionMade:
		e = ContributionMade{EventMeta: meta, Member: r.Subject, Round: r.Round, Amount: cloneInt(r.Amount)}
	case KindPayoutDistributed:
		e = PayoutDistributed{EventMeta: meta, Recipient: r.Subject, Round: r.Round, Amount: cloneInt(r.Amount)}
	case KindLatePaymentRecorded:
		e = LatePaymentRecorded{EventMeta: meta, Member: r.Subject, Round: r.Round, Fee: cloneInt(r.Amount)}
	case KindMemberForfeited:
		e = MemberForfeited{EventMeta: meta, Forfeiter: r.Counterparty, Member: r.Subject, Round: r.Round, Deduction: cloneInt(r.Amount)}
	case KindCollateralWithdrawn:
		e = CollateralWithdrawn{EventMeta: meta, Member: r.Subject, Amount: cloneInt(r.Amount)}
	case KindCollateralReturned:
		e = CollateralReturned{EventMeta: meta, Member: r.Subject, Amount: cloneInt(r.Amount)}
	case KindDeadCircleFeeDeducted:
		e = DeadCircleFeeDeducted{EventMeta: meta, Creator: r.Subject, Amount: cloneInt(r.Amount)}
	case KindMemberInvited:
		e = MemberInvited{EventMeta: meta, Inviter: r.Counterparty, Invitee: r.Subject}
	default:
		return nil, &IntegrityWarning{EventID: r.ID, Kind: r.Kind, Reason: "unknown event kind"}
	}

	if err := e.Validate(); err != nil {
		return nil, &IntegrityWarning{EventID: r.ID, Kind: r.Kind, Reason: err.Error()}
	}
	return e, nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
