package ledgerview

import (
	"sort"

	"circlepot/internal/domain"
)

// Joins returns MemberJoined events in ledger order.
func (v *View) Joins() []domain.MemberJoined {
	return typed[domain.MemberJoined](v, domain.KindMemberJoined)
}

// Positions returns PositionAssigned events sorted by position ascending.
func (v *View) Positions() []domain.PositionAssigned {
	out := typed[domain.PositionAssigned](v, domain.KindPositionAssigned)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// Invites returns MemberInvited events in ledger order.
func (v *View) Invites() []domain.MemberInvited {
	return typed[domain.MemberInvited](v, domain.KindMemberInvited)
}

// VotingInitiated returns the first voting initiation, if any.
func (v *View) VotingInitiated() (domain.VotingInitiated, bool) {
	all := typed[domain.VotingInitiated](v, domain.KindVotingInitiated)
	if len(all) == 0 {
		return domain.VotingInitiated{}, false
	}
	return all[0], true
}

// Votes returns VoteCast events in ledger order.
func (v *View) Votes() []domain.VoteCast {
	return typed[domain.VoteCast](v, domain.KindVoteCast)
}

// HasVoted reports whether voter cast a ballot.
func (v *View) HasVoted(voter string) bool {
	for _, vc := range v.Votes() {
		if vc.Voter == voter {
			return true
		}
	}
	return false
}

// VoteExecution returns the vote tally, if the vote was executed.
func (v *View) VoteExecution() (domain.VoteExecuted, bool) {
	all := typed[domain.VoteExecuted](v, domain.KindVoteExecuted)
	if len(all) == 0 {
		return domain.VoteExecuted{}, false
	}
	return all[0], true
}

// Contributions returns ContributionMade events in ledger order.
func (v *View) Contributions() []domain.ContributionMade {
	return typed[domain.ContributionMade](v, domain.KindContributionMade)
}

// ContributorsForRound returns the set of members who contributed to round.
func (v *View) ContributorsForRound(round int) map[string]bool {
	out := make(map[string]bool)
	for _, c := range v.Contributions() {
		if c.Round == round {
			out[c.Member] = true
		}
	}
	return out
}

// Payouts returns PayoutDistributed events in ledger order.
func (v *View) Payouts() []domain.PayoutDistributed {
	return typed[domain.PayoutDistributed](v, domain.KindPayoutDistributed)
}

// PayoutForRound returns the payout of round, if distributed.
func (v *View) PayoutForRound(round int) (domain.PayoutDistributed, bool) {
	for _, p := range v.Payouts() {
		if p.Round == round {
			return p, true
		}
	}
	return domain.PayoutDistributed{}, false
}

// LatePayments returns LatePaymentRecorded events in ledger order.
func (v *View) LatePayments() []domain.LatePaymentRecorded {
	return typed[domain.LatePaymentRecorded](v, domain.KindLatePaymentRecorded)
}

// Forfeitures returns MemberForfeited events in ledger order.
func (v *View) Forfeitures() []domain.MemberForfeited {
	return typed[domain.MemberForfeited](v, domain.KindMemberForfeited)
}

// CollateralWithdrawals returns CollateralWithdrawn events in ledger order.
func (v *View) CollateralWithdrawals() []domain.CollateralWithdrawn {
	return typed[domain.CollateralWithdrawn](v, domain.KindCollateralWithdrawn)
}

// CollateralReturns returns CollateralReturned events in ledger order.
func (v *View) CollateralReturns() []domain.CollateralReturned {
	return typed[domain.CollateralReturned](v, domain.KindCollateralReturned)
}

// DeadFees returns DeadCircleFeeDeducted events in ledger order.
func (v *View) DeadFees() []domain.DeadCircleFeeDeducted {
	return typed[domain.DeadCircleFeeDeducted](v, domain.KindDeadCircleFeeDeducted)
}

func typed[T domain.Event](v *View, kind domain.EventKind) []T {
	events := v.byKind[kind]
	out := make([]T, 0, len(events))
	for _, e := range events {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
