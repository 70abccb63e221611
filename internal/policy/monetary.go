package policy

import (
	"math/big"

	"circlepot/internal/domain"
)

// Basis-point rates. All percentages are applied as (x * bps) / 10000 with
// truncation toward zero, matching the ledger's integer arithmetic.
const (
	BasisPoints        = 10000
	CollateralBufferBp = 100 // 1% late-fee buffer on top of committed contributions
	PlatformFeeBp      = 100 // 1% fee on non-creator payouts
	StartQuorumPct     = 60  // share of max members needed to start
)

var (
	// TokenUnit is one whole unit of the base currency (18 decimals).
	TokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// Dead-circle creator fees: $1 private, $0.50 public.
	deadFeePrivate = new(big.Int).Set(TokenUnit)
	deadFeePublic  = new(big.Int).Quo(TokenUnit, big.NewInt(2))

	bpDenominator = big.NewInt(BasisPoints)
)

// ApplyBasisPoints returns (amount * bps) / 10000, truncated.
func ApplyBasisPoints(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, bpDenominator)
}

// RequiredCollateral is contribution × maxMembers plus the 1% buffer.
func RequiredCollateral(contribution *big.Int, maxMembers int) *big.Int {
	total := new(big.Int).Mul(contribution, big.NewInt(int64(maxMembers)))
	return total.Add(total, ApplyBasisPoints(total, CollateralBufferBp))
}

// EffectiveMembers is the member count a pot is computed over: current
// members once started, the cap otherwise. phase is the derived phase, so a
// circle overridden to Dead prices on the cap.
func EffectiveMembers(c *domain.Circle, phase domain.CircleState) int {
	if phase.Started() {
		return c.CurrentMembers
	}
	return c.MaxMembers
}

// Pot is contribution × effectiveMembers.
func Pot(contribution *big.Int, effectiveMembers int) *big.Int {
	return new(big.Int).Mul(contribution, big.NewInt(int64(effectiveMembers)))
}

// PlatformFee is the fee withheld from a payout. Creators are exempt.
func PlatformFee(pot *big.Int, isCreator bool) *big.Int {
	if isCreator {
		return new(big.Int)
	}
	return ApplyBasisPoints(pot, PlatformFeeBp)
}

// PayoutAmount is what a recipient receives for a round.
func PayoutAmount(contribution *big.Int, effectiveMembers int, isCreator bool) *big.Int {
	pot := Pot(contribution, effectiveMembers)
	return pot.Sub(pot, PlatformFee(pot, isCreator))
}

// DeadCircleFee is the one-time creator charge when a circle dies.
func DeadCircleFee(isCreator bool, visibility domain.Visibility) *big.Int {
	if !isCreator {
		return new(big.Int)
	}
	if visibility == domain.VisibilityPublic {
		return new(big.Int).Set(deadFeePublic)
	}
	return new(big.Int).Set(deadFeePrivate)
}

// MinMembersToStart is ceil(maxMembers × 60%).
func MinMembersToStart(maxMembers int) int {
	return (maxMembers*StartQuorumPct + 99) / 100
}
