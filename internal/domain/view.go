package domain

import (
	"math/big"
	"time"
)

// ActionKind is a ledger transaction a viewer may submit next.
type ActionKind string

const (
	ActionWithdrawCollateral ActionKind = "WITHDRAW_COLLATERAL"
	ActionExecuteVote        ActionKind = "EXECUTE_VOTE"
	ActionCastVote           ActionKind = "CAST_VOTE"
	ActionInitiateVoting     ActionKind = "INITIATE_VOTING"
	ActionForfeitMember      ActionKind = "FORFEIT_MEMBER"
	ActionContribute         ActionKind = "CONTRIBUTE"
	ActionNone               ActionKind = "NO_ACTION"
)

// WithdrawReason explains why collateral withdrawal is open.
type WithdrawReason string

const (
	ReasonVoteFailed     WithdrawReason = "vote_failed"
	ReasonBelowThreshold WithdrawReason = "below_threshold"
)

// Informational statuses attached to NoAction.
const (
	StatusContributed    = "Contributed"
	StatusAwaitingPayout = "Awaiting Payout"
	StatusWithdrawn      = "Withdrawn"
	StatusCompleted      = "Completed"
)

// Action describes one permitted next step with the arguments an executor
// needs to submit it.
type Action struct {
	Kind     ActionKind     `json:"kind"`
	CircleID string         `json:"circle_id"`
	Round    int            `json:"round,omitempty"`
	Targets  []string       `json:"targets,omitempty"`
	Reason   WithdrawReason `json:"reason,omitempty"`
	Status   string         `json:"status,omitempty"`
}

// MemberSlot is a member with its payout position.
type MemberSlot struct {
	Address  string `json:"address"`
	Position int    `json:"position"`
	Assigned bool   `json:"assigned"` // false when inferred from join order
}

// RoundDeduction is the collateral deduction attributed to one round.
type RoundDeduction struct {
	Round               int       `json:"round"`
	Source              EventKind `json:"source"` // MemberForfeited | LatePaymentRecorded
	Deduction           *big.Int  `json:"deduction"`
	PenaltyPortion      *big.Int  `json:"penalty_portion"`
	ContributionPortion *big.Int  `json:"contribution_portion"`
}

// Collateral is the per-user collateral ledger of a circle.
type Collateral struct {
	Gross                 *big.Int         `json:"gross"`
	TotalPenaltyLoss      *big.Int         `json:"total_penalty_loss"`
	TotalContributionLoss *big.Int         `json:"total_contribution_loss"`
	LatePaymentCount      int              `json:"late_payment_count"`
	DeadFee               *big.Int         `json:"dead_fee"`
	Net                   *big.Int         `json:"net"`
	Withdrawn             bool             `json:"withdrawn"`
	Rounds                []RoundDeduction `json:"rounds,omitempty"`
}

// Deadlines holds the concrete deadlines of a circle. Zero times mean the
// deadline does not apply in the current phase.
type Deadlines struct {
	Ultimatum           time.Time `json:"ultimatum"`
	UltimatumPassed     bool      `json:"ultimatum_passed"`
	RoundBase           time.Time `json:"round_base"`
	Contribution        time.Time `json:"contribution"`
	ContributionElapsed bool      `json:"contribution_elapsed"`
	VotingStart         time.Time `json:"voting_start"`
	VotingEnd           time.Time `json:"voting_end"`
}

// Voting summarises the start vote.
type Voting struct {
	Initiated     bool `json:"initiated"`
	Open          bool `json:"open"`
	Ended         bool `json:"ended"`
	Executed      bool `json:"executed"`
	WithdrawWon   bool `json:"withdraw_won"`
	StartVotes    int  `json:"start_votes"`
	WithdrawVotes int  `json:"withdraw_votes"`
	ViewerVoted   bool `json:"viewer_voted"`
}

// Display carries presentation-ready strings.
type Display struct {
	ContributionAmount   string `json:"contribution_amount"`
	RequiredCollateral   string `json:"required_collateral"`
	PayoutAmount         string `json:"payout_amount"`
	NetCollateral        string `json:"net_collateral"`
	UltimatumDeadline    string `json:"ultimatum_deadline"`
	ContributionDeadline string `json:"contribution_deadline,omitempty"`
	VotingDeadline       string `json:"voting_deadline,omitempty"`

	// Addresses in EIP-55 checksum form.
	Viewer      string   `json:"viewer,omitempty"`
	Creator     string   `json:"creator"`
	Members     []string `json:"members"` // position order, parallel to CircleView.Members
	Recipient   string   `json:"recipient,omitempty"`
	LateMembers []string `json:"late_members"`
}

// CircleView is the immutable per-viewer projection of a circle.
type CircleView struct {
	CircleID     string      `json:"circle_id"`
	Viewer       string      `json:"viewer"`
	Phase        CircleState `json:"phase"`
	NominalState CircleState `json:"nominal_state"`
	Frequency    Frequency   `json:"frequency"`
	CurrentRound int         `json:"current_round"`

	IsMember       bool         `json:"is_member"`
	IsCreator      bool         `json:"is_creator"`
	ViewerPosition int          `json:"viewer_position,omitempty"`
	Members        []MemberSlot `json:"members"`
	MinToStart     int          `json:"min_to_start"`

	Recipient          string   `json:"recipient,omitempty"`
	ViewerContributed  bool     `json:"viewer_contributed"`
	PayoutDone         bool     `json:"payout_done"`
	LateMembers        []string `json:"late_members"`
	ContributionAmount *big.Int `json:"contribution_amount"`
	RequiredCollateral *big.Int `json:"required_collateral"`
	PayoutAmount       *big.Int `json:"payout_amount"`
	ViewerPayoutAmount *big.Int `json:"viewer_payout_amount"`

	Deadlines  Deadlines  `json:"deadlines"`
	Voting     Voting     `json:"voting"`
	Collateral Collateral `json:"collateral"`
	Display    Display    `json:"display"`

	Actions  []Action `json:"actions"`
	Warnings []string `json:"warnings,omitempty"`
}

// PrimaryAction returns the first permitted action.
func (v *CircleView) PrimaryAction() Action {
	if len(v.Actions) == 0 {
		return Action{Kind: ActionNone, CircleID: v.CircleID}
	}
	return v.Actions[0]
}
