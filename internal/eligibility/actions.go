package eligibility

import (
	"circlepot/internal/domain"
)

// actions evaluates the permission rules in priority order. Every matching
// rule contributes an action; only the first action of each kind is kept.
// When nothing matches, a single NoAction with an informational status is
// returned.
func (s *state) actions() []domain.Action {
	var out []domain.Action
	seen := make(map[domain.ActionKind]bool)
	add := func(a domain.Action) {
		if seen[a.Kind] {
			return
		}
		seen[a.Kind] = true
		a.CircleID = s.circle.ID
		out = append(out, a)
	}

	canWithdraw := s.isMember && !s.collateral.Withdrawn
	belowThreshold := s.deadlines.UltimatumPassed && s.memberCount < s.minToStart
	preStart := s.phase == domain.StateCreated || s.phase == domain.StateVoting

	// Terminal: dead circle, or the start vote resolved to withdraw.
	terminal := s.phase == domain.StateDead || (s.phase == domain.StateActive && s.voting.WithdrawWon)
	if terminal && canWithdraw && (s.voting.WithdrawWon || belowThreshold) {
		add(domain.Action{Kind: domain.ActionWithdrawCollateral, Reason: s.withdrawReason()})
	}

	if preStart && s.isMember && s.voting.Initiated && s.voting.Ended && !s.voting.Executed {
		add(domain.Action{Kind: domain.ActionExecuteVote})
	}

	if preStart && s.isMember && s.voting.Open && !s.voting.Executed && !s.voting.ViewerVoted {
		add(domain.Action{Kind: domain.ActionCastVote})
	}

	if preStart && canWithdraw && s.voting.Executed && s.voting.WithdrawWon {
		add(domain.Action{Kind: domain.ActionWithdrawCollateral, Reason: domain.ReasonVoteFailed})
	}

	if s.phase == domain.StateCreated && s.isMember && s.deadlines.UltimatumPassed &&
		!s.voting.Initiated && s.memberCount >= s.minToStart {
		add(domain.Action{Kind: domain.ActionInitiateVoting})
	}

	if s.phase == domain.StateCreated && canWithdraw && belowThreshold {
		add(domain.Action{Kind: domain.ActionWithdrawCollateral, Reason: domain.ReasonBelowThreshold})
	}

	if s.phase == domain.StateActive && s.isMember && !s.voting.WithdrawWon {
		round := s.circle.CurrentRound
		isRecipient := s.viewer == s.recipient
		forfeitOpen := s.deadlines.ContributionElapsed && !s.payoutDone && len(s.late) > 0

		if isRecipient && forfeitOpen {
			add(domain.Action{Kind: domain.ActionForfeitMember, Round: round, Targets: s.lateTargets()})
		}
		if !isRecipient && !s.contributed {
			add(domain.Action{Kind: domain.ActionContribute, Round: round})
		}
		if s.contributed && forfeitOpen {
			add(domain.Action{Kind: domain.ActionForfeitMember, Round: round, Targets: s.lateTargets()})
		}
	}

	if len(out) == 0 {
		out = append(out, domain.Action{
			Kind:     domain.ActionNone,
			CircleID: s.circle.ID,
			Status:   s.status(),
		})
	}
	return out
}

func (s *state) withdrawReason() domain.WithdrawReason {
	if s.voting.WithdrawWon {
		return domain.ReasonVoteFailed
	}
	return domain.ReasonBelowThreshold
}

func (s *state) lateTargets() []string {
	return append([]string(nil), s.late...)
}

// status labels a NoAction result.
func (s *state) status() string {
	switch {
	case s.phase == domain.StateDead && s.collateral.Withdrawn:
		return domain.StatusWithdrawn
	case s.phase == domain.StateCompleted:
		return domain.StatusCompleted
	case s.phase == domain.StateActive && s.isMember && s.viewer == s.recipient:
		return domain.StatusAwaitingPayout
	case s.phase == domain.StateActive && s.contributed:
		return domain.StatusContributed
	}
	return ""
}
