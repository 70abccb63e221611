// Package settlement reduces a user's event history in one circle to net
// monetary outcomes.
package settlement

import (
	"math/big"
	"sort"

	"circlepot/internal/domain"
	"circlepot/internal/ledgerview"
	"circlepot/internal/policy"
)

// Split divides a forfeiture deduction into the contribution it covered and
// the penalty on top. contribution + penalty == deduction always holds.
func Split(deduction, contributionAmount *big.Int) (contribution, penalty *big.Int) {
	contribution = new(big.Int).Set(deduction)
	if contribution.Cmp(contributionAmount) > 0 {
		contribution.Set(contributionAmount)
	}
	penalty = new(big.Int).Sub(deduction, contribution)
	if penalty.Sign() < 0 {
		penalty.SetInt64(0)
	}
	return contribution, penalty
}

// RoundDeductions merges late-payment and forfeiture events of member into one
// deduction per round, ascending by round. A forfeiture supersedes a late
// payment recorded for the same round; several events of the same kind for a
// round are summed.
func RoundDeductions(view *ledgerview.View, member string, contributionAmount *big.Int) []domain.RoundDeduction {
	forfeited := make(map[int]*big.Int)
	for _, f := range view.Forfeitures() {
		if f.Member != member {
			continue
		}
		if forfeited[f.Round] == nil {
			forfeited[f.Round] = new(big.Int)
		}
		forfeited[f.Round].Add(forfeited[f.Round], f.Deduction)
	}

	lateFees := make(map[int]*big.Int)
	for _, lp := range view.LatePayments() {
		if lp.Member != member {
			continue
		}
		if _, ok := forfeited[lp.Round]; ok {
			continue
		}
		if lateFees[lp.Round] == nil {
			lateFees[lp.Round] = new(big.Int)
		}
		lateFees[lp.Round].Add(lateFees[lp.Round], lp.Fee)
	}

	out := make([]domain.RoundDeduction, 0, len(forfeited)+len(lateFees))
	for round, deduction := range forfeited {
		contribution, penalty := Split(deduction, contributionAmount)
		out = append(out, domain.RoundDeduction{
			Round:               round,
			Source:              domain.KindMemberForfeited,
			Deduction:           deduction,
			PenaltyPortion:      penalty,
			ContributionPortion: contribution,
		})
	}
	for round, fee := range lateFees {
		out = append(out, domain.RoundDeduction{
			Round:               round,
			Source:              domain.KindLatePaymentRecorded,
			Deduction:           fee,
			PenaltyPortion:      new(big.Int).Set(fee),
			ContributionPortion: new(big.Int),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Round < out[j].Round
	})
	return out
}

// IsDead reports whether the circle must be treated as Dead: any collateral
// withdrawal means the circle died, whatever its nominal ledger state says.
func IsDead(nominal domain.CircleState, view *ledgerview.View) bool {
	return nominal == domain.StateDead || len(view.CollateralWithdrawals()) > 0
}

// DerivedPhase applies the dead-circle override to the nominal state.
func DerivedPhase(nominal domain.CircleState, view *ledgerview.View) domain.CircleState {
	if IsDead(nominal, view) {
		return domain.StateDead
	}
	return nominal
}

// Input is what Calculate needs besides the ledger view.
type Input struct {
	Circle *domain.Circle
	Phase  domain.CircleState // derived phase (see DerivedPhase)
	Member string
}

// Calculate returns the collateral ledger of in.Member.
//
// Net = gross - total penalty loss - dead fee. Contribution losses are
// reported but not subtracted again: the ledger already moved that part of
// the collateral into the pot when the forfeiture happened.
func Calculate(in Input, view *ledgerview.View) domain.Collateral {
	c := in.Circle
	gross := policy.RequiredCollateral(c.ContributionAmount, c.MaxMembers)

	rounds := RoundDeductions(view, in.Member, c.ContributionAmount)
	penalty := new(big.Int)
	contribution := new(big.Int)
	for _, rd := range rounds {
		penalty.Add(penalty, rd.PenaltyPortion)
		contribution.Add(contribution, rd.ContributionPortion)
	}

	deadFee := new(big.Int)
	isCreator := in.Member != "" && in.Member == c.Creator
	if in.Phase == domain.StateDead && isCreator {
		deadFee = deadFeeOf(view, in.Member)
		if deadFee == nil {
			deadFee = policy.DeadCircleFee(true, c.Visibility)
		}
	}

	net := new(big.Int).Sub(gross, penalty)
	net.Sub(net, deadFee)
	if net.Sign() < 0 {
		net.SetInt64(0)
	}

	withdrawn := false
	for _, w := range view.CollateralWithdrawals() {
		if w.Member == in.Member {
			withdrawn = true
			break
		}
	}

	return domain.Collateral{
		Gross:                 gross,
		TotalPenaltyLoss:      penalty,
		TotalContributionLoss: contribution,
		LatePaymentCount:      len(rounds),
		DeadFee:               deadFee,
		Net:                   net,
		Withdrawn:             withdrawn,
		Rounds:                rounds,
	}
}

// deadFeeOf returns the fee already recorded on the ledger, or nil.
func deadFeeOf(view *ledgerview.View, creator string) *big.Int {
	var total *big.Int
	for _, f := range view.DeadFees() {
		if f.Creator != creator {
			continue
		}
		if total == nil {
			total = new(big.Int)
		}
		total.Add(total, f.Amount)
	}
	return total
}
