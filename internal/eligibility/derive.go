// Package eligibility composes the derivation components into the per-viewer
// CircleView and decides which ledger actions the viewer may take next.
package eligibility

import (
	"time"

	"circlepot/internal/address"
	"circlepot/internal/deadline"
	"circlepot/internal/domain"
	"circlepot/internal/ledgerview"
	"circlepot/internal/members"
	"circlepot/internal/policy"
	"circlepot/internal/settlement"
)

// Derive computes the view of circle for viewer at now. It is a pure function
// of its inputs. The viewer and circle creator are normalized here; event
// addresses must already be in lower-case form, as indexer.Decode produces.
//
// Errors: domain.ErrNotStarted when an Active circle has no start time, and
// *domain.InvariantViolation for an inconsistent summary or feed.
func Derive(circle domain.Circle, view *ledgerview.View, viewer string, now time.Time) (*domain.CircleView, error) {
	if err := circle.Validate(); err != nil {
		return nil, err
	}
	if view.CircleID() != circle.ID {
		return nil, domain.NewInvariantViolation("circle_id", "view of circle %s used for circle %s", view.CircleID(), circle.ID)
	}
	if n, err := address.Normalize(circle.Creator); err == nil {
		circle.Creator = n
	}
	circle.CreatedAt = circle.CreatedAt.UTC()
	circle.StartedAt = circle.StartedAt.UTC()
	now = now.UTC()

	if n, err := address.Normalize(viewer); err == nil {
		viewer = n
	} else {
		viewer = ""
	}

	phase := settlement.DerivedPhase(circle.State, view)
	roster := members.BuildRoster(circle.Creator, view)
	if roster.Len() > circle.MaxMembers {
		return nil, domain.NewInvariantViolation("member_cap",
			"circle %s has %d distinct members, cap is %d", circle.ID, roster.Len(), circle.MaxMembers)
	}

	memberCount := circle.CurrentMembers
	if roster.Len() > memberCount {
		memberCount = roster.Len()
	}

	s := &state{
		circle:      &circle,
		view:        view,
		roster:      roster,
		viewer:      viewer,
		now:         now,
		phase:       phase,
		memberCount: memberCount,
		minToStart:  policy.MinMembersToStart(circle.MaxMembers),
		isMember:    viewer != "" && roster.IsMember(viewer),
		isCreator:   viewer != "" && viewer == circle.Creator,
		late:        []string{},
	}

	if err := s.deriveDeadlines(); err != nil {
		return nil, err
	}
	s.deriveVoting()
	s.deriveRound()
	s.collateral = settlement.Calculate(settlement.Input{Circle: &circle, Phase: phase, Member: viewer}, view)

	return s.build(), nil
}

// state carries intermediate results between derivation steps.
type state struct {
	circle      *domain.Circle
	view        *ledgerview.View
	roster      *members.Roster
	viewer      string
	now         time.Time
	phase       domain.CircleState
	memberCount int
	minToStart  int
	isMember    bool
	isCreator   bool

	deadlines domain.Deadlines
	window    deadline.VotingWindow
	voting    domain.Voting

	recipient   string
	contributed bool
	payoutDone  bool
	late        []string

	collateral domain.Collateral
}

func (s *state) deriveDeadlines() error {
	calc := deadline.NewCalculator(deadline.AnchorsOf(s.circle))
	s.deadlines.Ultimatum = calc.Ultimatum()
	s.deadlines.UltimatumPassed = calc.UltimatumPassed(s.now)

	if s.phase != domain.StateActive {
		return nil
	}

	round := s.circle.CurrentRound
	var prevPayout time.Time
	if p, ok := s.view.PayoutForRound(round - 1); ok {
		prevPayout = p.Timestamp.UTC()
	}

	base, err := calc.BaseRoundDeadline(round, prevPayout)
	if err != nil {
		return err
	}
	due, err := calc.ContributionDeadline(round, prevPayout)
	if err != nil {
		return err
	}
	s.deadlines.RoundBase = base
	s.deadlines.Contribution = due
	s.deadlines.ContributionElapsed = s.now.After(due)
	return nil
}

func (s *state) deriveVoting() {
	if vi, ok := s.view.VotingInitiated(); ok {
		s.window = deadline.NewVotingWindow(vi.StartedAt().UTC())
		s.voting.Initiated = true
		s.voting.Open = s.window.Open(s.now)
		s.voting.Ended = s.window.Ended(s.now)
		s.deadlines.VotingStart = s.window.Start
		s.deadlines.VotingEnd = s.window.End
	}
	if exec, ok := s.view.VoteExecution(); ok {
		s.voting.Executed = true
		s.voting.WithdrawWon = !exec.CircleStarted
		s.voting.StartVotes = exec.StartVotes
		s.voting.WithdrawVotes = exec.WithdrawVotes
	} else {
		for _, vc := range s.view.Votes() {
			if vc.Choice == domain.VoteStart {
				s.voting.StartVotes++
			} else {
				s.voting.WithdrawVotes++
			}
		}
	}
	s.voting.ViewerVoted = s.viewer != "" && s.view.HasVoted(s.viewer)
}

func (s *state) deriveRound() {
	round := s.circle.CurrentRound
	s.recipient, _ = s.roster.Recipient(round)
	_, s.payoutDone = s.view.PayoutForRound(round)
	s.contributed = s.viewer != "" && s.view.ContributorsForRound(round)[s.viewer]
	s.late = members.LateMembers(s.phase, round, s.roster, s.view)
}

func (s *state) build() *domain.CircleView {
	c := s.circle
	effective := policy.EffectiveMembers(c, s.phase)
	recipientIsCreator := s.recipient != "" && s.recipient == c.Creator
	payout := policy.PayoutAmount(c.ContributionAmount, effective, recipientIsCreator)
	required := policy.RequiredCollateral(c.ContributionAmount, c.MaxMembers)
	slots := s.roster.Slots()

	warnings := []string{}
	for _, w := range s.view.Warnings() {
		warnings = append(warnings, w.Error())
	}
	if len(warnings) == 0 {
		warnings = nil
	}

	return &domain.CircleView{
		CircleID:     c.ID,
		Viewer:       s.viewer,
		Phase:        s.phase,
		NominalState: c.State,
		Frequency:    c.Frequency,
		CurrentRound: c.CurrentRound,

		IsMember:       s.isMember,
		IsCreator:      s.isCreator,
		ViewerPosition: s.roster.Position(s.viewer),
		Members:        slots,
		MinToStart:     s.minToStart,

		Recipient:          s.recipient,
		ViewerContributed:  s.contributed,
		PayoutDone:         s.payoutDone,
		LateMembers:        s.late,
		ContributionAmount: c.ContributionAmount,
		RequiredCollateral: required,
		PayoutAmount:       payout,
		ViewerPayoutAmount: policy.PayoutAmount(c.ContributionAmount, effective, s.isCreator),

		Deadlines:  s.deadlines,
		Voting:     s.voting,
		Collateral: s.collateral,
		Display: domain.Display{
			ContributionAmount:   policy.FormatAmount(c.ContributionAmount, 2),
			RequiredCollateral:   policy.FormatAmount(required, 2),
			PayoutAmount:         policy.FormatAmount(payout, 2),
			NetCollateral:        policy.FormatAmount(s.collateral.Net, 2),
			UltimatumDeadline:    policy.FormatDeadline(s.deadlines.Ultimatum),
			ContributionDeadline: policy.FormatDeadline(s.deadlines.Contribution),
			VotingDeadline:       policy.FormatDeadline(s.deadlines.VotingEnd),

			Viewer:      checksum(s.viewer),
			Creator:     checksum(c.Creator),
			Members:     checksumSlots(slots),
			Recipient:   checksum(s.recipient),
			LateMembers: checksumAll(s.late),
		},

		Actions:  s.actions(),
		Warnings: warnings,
	}
}

// checksum renders a normalized address for display. Empty stays empty.
func checksum(addr string) string {
	if addr == "" {
		return ""
	}
	out, err := address.Checksum(addr)
	if err != nil {
		return addr
	}
	return out
}

func checksumAll(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, checksum(a))
	}
	return out
}

func checksumSlots(slots []domain.MemberSlot) []string {
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		out = append(out, checksum(slot.Address))
	}
	return out
}
