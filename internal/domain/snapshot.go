package domain

import (
	"math/big"
	"time"
)

// ViewSnapshot is the analytic summary of one derived CircleView.
// Corresponds to the view_snapshots table in ClickHouse.
type ViewSnapshot struct {
	ID            string      `json:"id"`
	CircleID      string      `json:"circle_id"`
	Viewer        string      `json:"viewer"`
	Phase         CircleState `json:"phase"`
	Round         int         `json:"round"`
	MemberCount   int         `json:"member_count"`
	LateCount     int         `json:"late_count"`
	PrimaryAction ActionKind  `json:"primary_action"`
	NetCollateral *big.Int    `json:"net_collateral"`
	PayoutAmount  *big.Int    `json:"payout_amount"`
	WarningCount  int         `json:"warning_count"`
	DerivedAt     time.Time   `json:"derived_at"`
}

// SnapshotOf summarises a view. The caller assigns ID.
func SnapshotOf(v *CircleView, derivedAt time.Time) *ViewSnapshot {
	s := &ViewSnapshot{
		CircleID:      v.CircleID,
		Viewer:        v.Viewer,
		Phase:         v.Phase,
		Round:         v.CurrentRound,
		MemberCount:   len(v.Members),
		LateCount:     len(v.LateMembers),
		PrimaryAction: v.PrimaryAction().Kind,
		NetCollateral: new(big.Int),
		PayoutAmount:  new(big.Int),
		WarningCount:  len(v.Warnings),
		DerivedAt:     derivedAt.UTC(),
	}
	if v.Collateral.Net != nil {
		s.NetCollateral.Set(v.Collateral.Net)
	}
	if v.PayoutAmount != nil {
		s.PayoutAmount.Set(v.PayoutAmount)
	}
	return s
}
