package policy

import (
	"errors"
	"math/big"
)

// WithdrawalPath selects the ledger call used to withdraw savings.
type WithdrawalPath string

const (
	PathEarly    WithdrawalPath = "EARLY"
	PathComplete WithdrawalPath = "COMPLETE"
)

// FullProgressBp is 100% progress in basis points.
const FullProgressBp = BasisPoints

// ErrInvalidTarget is returned when a savings target is not positive.
var ErrInvalidTarget = errors.New("savings target must be positive")

// EarlyWithdrawalPenaltyBp maps progress (basis points of the target) to the
// penalty rate in basis points. Tier boundaries are strict.
func EarlyWithdrawalPenaltyBp(progressBp int64) int64 {
	switch {
	case progressBp < 2500:
		return 100 // 1.0%
	case progressBp < 5000:
		return 60 // 0.6%
	case progressBp < 7500:
		return 30 // 0.3%
	case progressBp < FullProgressBp:
		return 10 // 0.1%
	default:
		return 0
	}
}

// ProgressBp is current/target in basis points, capped at 100%.
func ProgressBp(current, target *big.Int) (int64, error) {
	if target == nil || target.Sign() <= 0 {
		return 0, ErrInvalidTarget
	}
	if current == nil || current.Sign() <= 0 {
		return 0, nil
	}
	p := new(big.Int).Mul(current, bpDenominator)
	p.Quo(p, target)
	if p.Cmp(bpDenominator) >= 0 {
		return FullProgressBp, nil
	}
	return p.Int64(), nil
}

// WithdrawalQuote is what a savings withdrawal nets.
type WithdrawalQuote struct {
	Path       WithdrawalPath `json:"path"`
	ProgressBp int64          `json:"progress_bp"`
	PenaltyBp  int64          `json:"penalty_bp"`
	Requested  *big.Int       `json:"requested"`
	Penalty    *big.Int       `json:"penalty"`
	Net        *big.Int       `json:"net"`
}

// QuoteWithdrawal prices a withdrawal of requested from a goal at
// current/target progress.
func QuoteWithdrawal(requested, current, target *big.Int) (WithdrawalQuote, error) {
	progress, err := ProgressBp(current, target)
	if err != nil {
		return WithdrawalQuote{}, err
	}

	path := PathEarly
	if progress >= FullProgressBp {
		path = PathComplete
	}

	rate := EarlyWithdrawalPenaltyBp(progress)
	penalty := ApplyBasisPoints(requested, rate)
	return WithdrawalQuote{
		Path:       path,
		ProgressBp: progress,
		PenaltyBp:  rate,
		Requested:  new(big.Int).Set(requested),
		Penalty:    penalty,
		Net:        new(big.Int).Sub(requested, penalty),
	}, nil
}
