package eligibility

import (
	"encoding/json"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlepot/internal/domain"
	"circlepot/internal/fixtures"
)

const day = 24 * time.Hour

var t0 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func engineAt(now time.Time) *Engine {
	return NewEngine(Options{Now: func() time.Time { return now }})
}

func assertAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	assert.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
}

func kinds(v *domain.CircleView) []domain.ActionKind {
	out := make([]domain.ActionKind, 0, len(v.Actions))
	for _, a := range v.Actions {
		out = append(out, a.Kind)
	}
	return out
}

// createdCircle has the creator plus joiners 2..n+1.
func createdCircle(joiners int) (domain.Circle, *fixtures.Builder, []domain.Event) {
	c := fixtures.Circle("7", t0)
	c.CurrentMembers = 1 + joiners
	b := fixtures.NewBuilder("7")
	var events []domain.Event
	for i := 0; i < joiners; i++ {
		events = append(events, b.Joined(fixtures.Addr(2+i), t0.Add(time.Duration(i+1)*time.Hour)))
	}
	return c, b, events
}

// activeCircle is a started weekly circle of three with member 2 paid in
// for round 1.
func activeCircle() (domain.Circle, *fixtures.Builder, []domain.Event, time.Time) {
	started := t0.Add(10 * day)
	c := fixtures.Circle("7", t0)
	c.State = domain.StateActive
	c.StartedAt = started
	c.CurrentMembers = 3

	b := fixtures.NewBuilder("7")
	events := fixtures.Events(
		b.Joined(fixtures.Addr(2), t0.Add(time.Hour)),
		b.Joined(fixtures.Addr(3), t0.Add(2*time.Hour)),
		b.VotingInitiated(t0.Add(7*day)),
		b.Vote(fixtures.Addr(2), domain.VoteStart, t0.Add(7*day+time.Hour)),
		b.Vote(fixtures.Addr(3), domain.VoteStart, t0.Add(7*day+2*time.Hour)),
		b.VoteExecuted(true, 2, 0, t0.Add(9*day+time.Hour)),
		b.Position(fixtures.Addr(1), 1, started),
		b.Position(fixtures.Addr(2), 2, started),
		b.Position(fixtures.Addr(3), 3, started),
		b.Contribution(fixtures.Addr(2), 1, fixtures.Units(100), started.Add(time.Hour)),
	)
	return c, b, events, started
}

func TestDeriveView_InitiateVotingAfterUltimatum(t *testing.T) {
	c, _, events := createdCircle(2)

	v, err := engineAt(t0.Add(8*day)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)

	assert.Equal(t, domain.StateCreated, v.Phase)
	assert.True(t, v.IsMember)
	assert.Equal(t, 3, v.MinToStart)
	assert.True(t, v.Deadlines.UltimatumPassed)
	assert.Equal(t, domain.ActionInitiateVoting, v.PrimaryAction().Kind)
	assert.Equal(t, "7", v.PrimaryAction().CircleID)

	// Non-members are never offered ledger actions.
	v, err = engineAt(t0.Add(8*day)).DeriveView(c, events, fixtures.Addr(9))
	require.NoError(t, err)
	assert.False(t, v.IsMember)
	assert.Equal(t, []domain.ActionKind{domain.ActionNone}, kinds(v))
}

func TestDeriveView_BelowThresholdWithdrawal(t *testing.T) {
	c, _, events := createdCircle(1)

	v, err := engineAt(t0.Add(6*day)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionNone, v.PrimaryAction().Kind)

	v, err = engineAt(t0.Add(7*day)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	primary := v.PrimaryAction()
	assert.Equal(t, domain.ActionWithdrawCollateral, primary.Kind)
	assert.Equal(t, domain.ReasonBelowThreshold, primary.Reason)
	assertAmount(t, fixtures.Units(505), v.Collateral.Net)
}

func TestDeriveView_VotingFlow(t *testing.T) {
	c, b, events := createdCircle(2)
	c.State = domain.StateVoting
	events = append(events,
		b.VotingInitiated(t0.Add(7*day)),
		b.Vote(fixtures.Addr(2), domain.VoteStart, t0.Add(7*day+time.Hour)),
	)

	open := engineAt(t0.Add(8 * day))

	v, err := open.DeriveView(c, events, fixtures.Addr(3))
	require.NoError(t, err)
	assert.True(t, v.Voting.Open)
	assert.Equal(t, 1, v.Voting.StartVotes)
	assert.Equal(t, domain.ActionCastVote, v.PrimaryAction().Kind)
	assert.Equal(t, policyDeadline(t0.Add(9*day)), v.Display.VotingDeadline)

	v, err = open.DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.True(t, v.Voting.ViewerVoted)
	assert.Equal(t, domain.ActionNone, v.PrimaryAction().Kind)

	v, err = engineAt(t0.Add(9*day)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.True(t, v.Voting.Ended)
	assert.Equal(t, domain.ActionExecuteVote, v.PrimaryAction().Kind)
}

func policyDeadline(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func TestDeriveView_FailedVote(t *testing.T) {
	c, b, events := createdCircle(2)
	c.State = domain.StateVoting
	events = append(events,
		b.VotingInitiated(t0.Add(7*day)),
		b.Vote(fixtures.Addr(2), domain.VoteWithdraw, t0.Add(7*day+time.Hour)),
		b.Vote(fixtures.Addr(3), domain.VoteWithdraw, t0.Add(7*day+2*time.Hour)),
		b.VoteExecuted(false, 0, 2, t0.Add(9*day+time.Hour)),
	)
	now := engineAt(t0.Add(10 * day))

	v, err := now.DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.True(t, v.Voting.WithdrawWon)
	assert.Equal(t, domain.ActionWithdrawCollateral, v.PrimaryAction().Kind)
	assert.Equal(t, domain.ReasonVoteFailed, v.PrimaryAction().Reason)

	// Once anyone withdraws, the circle is dead regardless of its nominal state.
	events = append(events, b.CollateralWithdrawn(fixtures.Addr(2), fixtures.Units(505), t0.Add(10*day)))

	v, err = now.DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.Equal(t, domain.StateDead, v.Phase)
	assert.Equal(t, domain.StateVoting, v.NominalState)
	assert.Equal(t, domain.ActionNone, v.PrimaryAction().Kind)
	assert.Equal(t, domain.StatusWithdrawn, v.PrimaryAction().Status)

	v, err = now.DeriveView(c, events, fixtures.Addr(3))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionWithdrawCollateral, v.PrimaryAction().Kind)
	assert.Equal(t, domain.ReasonVoteFailed, v.PrimaryAction().Reason)

	// The creator pays the dead-circle fee out of its collateral.
	v, err = now.DeriveView(c, events, fixtures.Addr(1))
	require.NoError(t, err)
	assert.True(t, v.IsCreator)
	assertAmount(t, new(big.Int).Sub(fixtures.Units(505), fixtures.Units(1)), v.Collateral.Net)
}

func TestDeriveView_ActiveRound(t *testing.T) {
	c, _, events, started := activeCircle()
	before := engineAt(started.Add(day))
	after := engineAt(started.Add(49 * time.Hour))

	v, err := before.DeriveView(c, events, fixtures.Addr(3))
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, v.Phase)
	assert.Equal(t, fixtures.Addr(1), v.Recipient)
	assert.Equal(t, started.Add(48*time.Hour), v.Deadlines.Contribution)
	assert.False(t, v.Deadlines.ContributionElapsed)
	assert.Equal(t, []domain.Action{{Kind: domain.ActionContribute, CircleID: "7", Round: 1}}, v.Actions)

	v, err = before.DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusContributed, v.PrimaryAction().Status)

	v, err = before.DeriveView(c, events, fixtures.Addr(1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPayout, v.PrimaryAction().Status)

	v, err = after.DeriveView(c, events, fixtures.Addr(1))
	require.NoError(t, err)
	assert.True(t, v.Deadlines.ContributionElapsed)
	assert.Equal(t, []string{fixtures.Addr(3)}, v.LateMembers)
	assert.Equal(t, domain.Action{
		Kind:     domain.ActionForfeitMember,
		CircleID: "7",
		Round:    1,
		Targets:  []string{fixtures.Addr(3)},
	}, v.PrimaryAction())

	v, err = after.DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionForfeitMember, v.PrimaryAction().Kind)

	v, err = after.DeriveView(c, events, fixtures.Addr(3))
	require.NoError(t, err)
	assert.Equal(t, []domain.ActionKind{domain.ActionContribute}, kinds(v))
}

func TestDeriveView_NoForfeitAfterPayout(t *testing.T) {
	c, b, events, started := activeCircle()
	events = append(events, b.Payout(fixtures.Addr(1), 1, fixtures.Units(300), started.Add(50*time.Hour)))

	v, err := engineAt(started.Add(51*time.Hour)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.True(t, v.PayoutDone)
	assert.Equal(t, domain.StatusContributed, v.PrimaryAction().Status)
}

func TestDeriveView_PayoutAmounts(t *testing.T) {
	c, _, events, started := activeCircle()

	v, err := engineAt(started).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)

	// Creator receives the round-1 pot without the platform fee.
	assertAmount(t, fixtures.Units(300), v.PayoutAmount)
	assertAmount(t, fixtures.Units(297), v.ViewerPayoutAmount)
	assertAmount(t, fixtures.Units(505), v.RequiredCollateral)
	assert.Equal(t, "100.00", v.Display.ContributionAmount)
	assert.Equal(t, "505.00", v.Display.RequiredCollateral)
	assert.Equal(t, "300.00", v.Display.PayoutAmount)
	assert.Equal(t, 2, v.ViewerPosition)
}

func TestDeriveView_RoundReanchorsToLatePayout(t *testing.T) {
	c, b, events, started := activeCircle()
	c.CurrentRound = 2
	paidAt := started.Add(10 * day)
	events = append(events, b.Payout(fixtures.Addr(1), 1, fixtures.Units(300), paidAt))

	v, err := engineAt(paidAt).DeriveView(c, events, fixtures.Addr(3))
	require.NoError(t, err)
	assert.Equal(t, paidAt, v.Deadlines.RoundBase)
	assert.Equal(t, paidAt.Add(48*time.Hour), v.Deadlines.Contribution)
	assert.Equal(t, fixtures.Addr(2), v.Recipient)
}

func TestDeriveView_RecipientNeverLate(t *testing.T) {
	c, _, events, started := activeCircle()
	for round := 1; round <= 3; round++ {
		c.CurrentRound = round
		v, err := engineAt(started.Add(60*day)).DeriveView(c, events, fixtures.Addr(1))
		require.NoError(t, err)
		assert.NotContains(t, v.LateMembers, v.Recipient, "round %d", round)
	}
}

func TestDeriveView_Completed(t *testing.T) {
	c, _, events, started := activeCircle()
	c.State = domain.StateCompleted

	v, err := engineAt(started.Add(30*day)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.Empty(t, v.LateMembers)
	assert.Equal(t, domain.StatusCompleted, v.PrimaryAction().Status)
}

func TestDeriveView_Errors(t *testing.T) {
	c, _, events, _ := activeCircle()
	c.StartedAt = time.Time{}
	_, err := engineAt(t0).DeriveView(c, events, fixtures.Addr(2))
	assert.ErrorIs(t, err, domain.ErrNotStarted)
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	c, _, events, _ = activeCircle()
	c.CurrentMembers = 6
	_, err = engineAt(t0).DeriveView(c, events, fixtures.Addr(2))
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	c, _, events = createdCircle(2)
	c.MaxMembers = 2
	c.CurrentMembers = 2
	_, err = engineAt(t0).DeriveView(c, events, fixtures.Addr(2))
	var iv *domain.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "member_cap", iv.Rule)
}

func TestDeriveView_MalformedEventsBecomeWarnings(t *testing.T) {
	c, b, events, started := activeCircle()
	events = append(events, b.Contribution(fixtures.Addr(3), 1, nil, started.Add(time.Hour)))

	v, err := engineAt(started.Add(day)).DeriveView(c, events, fixtures.Addr(3))
	require.NoError(t, err)
	assert.Len(t, v.Warnings, 1)
	assert.False(t, v.ViewerContributed)
}

func TestDeriveView_NormalizesViewer(t *testing.T) {
	c, _, events, started := activeCircle()

	v, err := engineAt(started).DeriveView(c, events, "0X0000000000000000000000000000000000000002")
	require.NoError(t, err)
	assert.Equal(t, fixtures.Addr(2), v.Viewer)
	assert.True(t, v.ViewerContributed)

	v, err = engineAt(started).DeriveView(c, events, "not-an-address")
	require.NoError(t, err)
	assert.Empty(t, v.Viewer)
	assert.False(t, v.IsMember)
}

func TestDeriveView_DeterministicAcrossPermutations(t *testing.T) {
	c, _, events, started := activeCircle()
	e := engineAt(started.Add(49 * time.Hour))

	ref, err := e.DeriveView(c, events, fixtures.Addr(1))
	require.NoError(t, err)
	want, err := json.Marshal(ref)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		shuffled := append([]domain.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		v, err := e.DeriveView(c, shuffled, fixtures.Addr(1))
		require.NoError(t, err)
		got, err := json.Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
}

func TestDeriveView_Idempotent(t *testing.T) {
	c, _, events, started := activeCircle()
	e := engineAt(started.Add(49 * time.Hour))

	once, err := e.DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	twice, err := e.DeriveView(c, append(append([]domain.Event(nil), events...), events...), fixtures.Addr(2))
	require.NoError(t, err)
	batched, err := e.DeriveFromBatches(c, [][]domain.Event{events[:4], events[2:], events}, fixtures.Addr(2))
	require.NoError(t, err)

	a, _ := json.Marshal(once)
	b, _ := json.Marshal(twice)
	d, _ := json.Marshal(batched)
	assert.JSONEq(t, string(a), string(b))
	assert.JSONEq(t, string(a), string(d))
}

const (
	mixedCaseCreator = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	lowerCaseCreator = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
)

func TestDeriveView_NormalizesCreator(t *testing.T) {
	c, _, events := createdCircle(2)
	c.Creator = mixedCaseCreator

	v, err := engineAt(t0.Add(time.Hour)).DeriveView(c, events, lowerCaseCreator)
	require.NoError(t, err)
	assert.True(t, v.IsCreator)
	assert.True(t, v.IsMember)
	require.Len(t, v.Members, 3)
	assert.Equal(t, lowerCaseCreator, v.Members[0].Address)
	assert.Equal(t, 1, v.ViewerPosition)
}

func TestDeriveView_DisplayAddressesAreChecksummed(t *testing.T) {
	c, _, events := createdCircle(2)
	c.Creator = lowerCaseCreator

	v, err := engineAt(t0.Add(time.Hour)).DeriveView(c, events, lowerCaseCreator)
	require.NoError(t, err)
	assert.Equal(t, mixedCaseCreator, v.Display.Viewer)
	assert.Equal(t, mixedCaseCreator, v.Display.Creator)
	assert.Equal(t, []string{mixedCaseCreator, fixtures.Addr(2), fixtures.Addr(3)}, v.Display.Members)
	assert.Equal(t, mixedCaseCreator, v.Display.Recipient)
	assert.Equal(t, []string{}, v.Display.LateMembers)

	ac, _, aevents, started := activeCircle()
	av, err := engineAt(started.Add(60*day)).DeriveView(ac, aevents, "")
	require.NoError(t, err)
	assert.Empty(t, av.Display.Viewer)
	assert.Equal(t, av.Recipient, av.Display.Recipient)
	assert.NotEmpty(t, av.LateMembers)
	assert.ElementsMatch(t, av.LateMembers, av.Display.LateMembers)
}

func TestDeriveView_DeadOverridePricesOnCap(t *testing.T) {
	c, b, events, started := activeCircle()
	events = append(events, b.CollateralWithdrawn(fixtures.Addr(3), fixtures.Units(505), started.Add(time.Hour)))

	v, err := engineAt(started.Add(2*time.Hour)).DeriveView(c, events, fixtures.Addr(2))
	require.NoError(t, err)
	assert.Equal(t, domain.StateDead, v.Phase)
	assert.Equal(t, domain.StateActive, v.NominalState)

	// Creator recipient, fee exempt, pot over MaxMembers (5), not CurrentMembers (3).
	assertAmount(t, fixtures.Units(500), v.PayoutAmount)
}
