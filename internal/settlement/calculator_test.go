package settlement

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlepot/internal/domain"
	"circlepot/internal/fixtures"
	"circlepot/internal/ledgerview"
	"circlepot/internal/policy"
)

var t0 = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func build(t *testing.T, events ...domain.Event) *ledgerview.View {
	t.Helper()
	v, err := ledgerview.Build("3", [][]domain.Event{events})
	require.NoError(t, err)
	return v
}

func activeCircle() *domain.Circle {
	c := fixtures.Circle("3", t0)
	c.State = domain.StateActive
	c.StartedAt = t0.Add(7 * 24 * time.Hour)
	c.CurrentMembers = 5
	return &c
}

func TestSplit_Invariant(t *testing.T) {
	contribution := big.NewInt(100)
	for _, d := range []int64{0, 1, 99, 100, 101, 250} {
		deduction := big.NewInt(d)
		c, p := Split(deduction, contribution)

		sum := new(big.Int).Add(c, p)
		assert.Equal(t, 0, sum.Cmp(deduction), "deduction %d", d)
		assert.LessOrEqual(t, c.Cmp(contribution), 0, "deduction %d", d)
		assert.GreaterOrEqual(t, p.Sign(), 0, "deduction %d", d)
	}

	c, p := Split(big.NewInt(101), contribution)
	assert.Equal(t, int64(100), c.Int64())
	assert.Equal(t, int64(1), p.Int64())
}

func TestRoundDeductions_ForfeitureSupersedesLatePayment(t *testing.T) {
	b := fixtures.NewBuilder("3")
	member := fixtures.Addr(2)
	v := build(t,
		b.LatePayment(member, 1, fixtures.Units(1), t0),
		b.Forfeit(fixtures.Addr(1), member, 1, fixtures.Units(101), t0.Add(time.Minute)),
		b.LatePayment(member, 2, fixtures.Units(1), t0.Add(time.Hour)),
		// Other members never leak into this member's ledger.
		b.LatePayment(fixtures.Addr(3), 2, fixtures.Units(5), t0.Add(time.Hour)),
	)

	rounds := RoundDeductions(v, member, fixtures.Units(100))
	require.Len(t, rounds, 2)

	assert.Equal(t, 1, rounds[0].Round)
	assert.Equal(t, domain.KindMemberForfeited, rounds[0].Source)
	assert.Equal(t, fixtures.Units(100), rounds[0].ContributionPortion)
	assert.Equal(t, fixtures.Units(1), rounds[0].PenaltyPortion)

	assert.Equal(t, 2, rounds[1].Round)
	assert.Equal(t, domain.KindLatePaymentRecorded, rounds[1].Source)
	assert.Equal(t, fixtures.Units(1), rounds[1].PenaltyPortion)
	assert.Equal(t, 0, rounds[1].ContributionPortion.Sign())
}

func TestCalculate_Totals(t *testing.T) {
	b := fixtures.NewBuilder("3")
	member := fixtures.Addr(2)
	v := build(t,
		b.Forfeit(fixtures.Addr(1), member, 1, fixtures.Units(101), t0),
		b.LatePayment(member, 1, fixtures.Units(1), t0),
		b.LatePayment(member, 2, fixtures.Units(2), t0.Add(time.Hour)),
	)
	c := activeCircle()

	got := Calculate(Input{Circle: c, Phase: domain.StateActive, Member: member}, v)

	assert.Equal(t, fixtures.Units(505), got.Gross)
	assert.Equal(t, fixtures.Units(3), got.TotalPenaltyLoss)
	assert.Equal(t, fixtures.Units(100), got.TotalContributionLoss)
	assert.Equal(t, 2, got.LatePaymentCount)
	assert.Equal(t, 0, got.DeadFee.Sign())
	assert.Equal(t, fixtures.Units(502), got.Net)
	assert.False(t, got.Withdrawn)
}

// Monotonic over additions that do not supersede a late payment already
// recorded for the same round; see TestCalculate_ForfeitureSupersedesLateFee.
func TestCalculate_NetCollateralMonotonic(t *testing.T) {
	b := fixtures.NewBuilder("3")
	member := fixtures.Addr(2)
	c := activeCircle()

	history := []domain.Event{}
	prev := Calculate(Input{Circle: c, Phase: domain.StateActive, Member: member}, build(t)).Net

	additions := []domain.Event{
		b.LatePayment(member, 1, fixtures.Units(1), t0),
		b.Forfeit(fixtures.Addr(1), member, 1, fixtures.Units(150), t0.Add(time.Minute)),
		b.LatePayment(member, 2, big.NewInt(0), t0.Add(time.Hour)),
		b.Forfeit(fixtures.Addr(1), member, 3, fixtures.Units(400), t0.Add(2*time.Hour)),
		b.Forfeit(fixtures.Addr(1), member, 4, fixtures.Units(400), t0.Add(3*time.Hour)),
	}
	for _, e := range additions {
		history = append(history, e)
		net := Calculate(Input{Circle: c, Phase: domain.StateActive, Member: member}, build(t, history...)).Net
		assert.LessOrEqual(t, net.Cmp(prev), 0)
		assert.GreaterOrEqual(t, net.Sign(), 0)
		prev = net
	}
}

func TestCalculate_ForfeitureSupersedesLateFee(t *testing.T) {
	b := fixtures.NewBuilder("3")
	member := fixtures.Addr(2)
	c := activeCircle()
	in := Input{Circle: c, Phase: domain.StateActive, Member: member}

	late := b.LatePayment(member, 1, fixtures.Units(5), t0)
	afterLate := Calculate(in, build(t, late))
	assertAmount(t, fixtures.Units(500), afterLate.Net)

	// A forfeiture of exactly the contribution carries no penalty and replaces
	// the round's late fee, so net rises back to gross.
	forfeit := b.Forfeit(fixtures.Addr(1), member, 1, fixtures.Units(100), t0.Add(time.Minute))
	afterForfeit := Calculate(in, build(t, late, forfeit))
	assertAmount(t, fixtures.Units(505), afterForfeit.Net)
	assert.Zero(t, afterForfeit.TotalPenaltyLoss.Sign())
	assertAmount(t, fixtures.Units(100), afterForfeit.TotalContributionLoss)
	assert.Equal(t, 1, afterForfeit.LatePaymentCount)
	require.Len(t, afterForfeit.Rounds, 1)
	assert.Equal(t, domain.KindMemberForfeited, afterForfeit.Rounds[0].Source)

	// Event order does not matter.
	reversed := Calculate(in, build(t, forfeit, late))
	assertAmount(t, afterForfeit.Net, reversed.Net)
}

func TestDerivedPhase_CollateralWithdrawalMeansDead(t *testing.T) {
	b := fixtures.NewBuilder("3")
	empty := build(t)
	withdrawn := build(t, b.CollateralWithdrawn(fixtures.Addr(2), fixtures.Units(505), t0))

	assert.Equal(t, domain.StateCreated, DerivedPhase(domain.StateCreated, empty))
	assert.Equal(t, domain.StateDead, DerivedPhase(domain.StateCreated, withdrawn))
	assert.Equal(t, domain.StateDead, DerivedPhase(domain.StateVoting, withdrawn))
	assert.Equal(t, domain.StateDead, DerivedPhase(domain.StateDead, empty))
}

func TestCalculate_DeadFeeForCreatorOnly(t *testing.T) {
	c := fixtures.Circle("3", t0)
	c.Visibility = domain.VisibilityPublic
	v := build(t)

	creator := Calculate(Input{Circle: &c, Phase: domain.StateDead, Member: c.Creator}, v)
	assert.Equal(t, policy.DeadCircleFee(true, domain.VisibilityPublic), creator.DeadFee)
	want := new(big.Int).Sub(fixtures.Units(505), creator.DeadFee)
	assert.Equal(t, want, creator.Net)

	member := Calculate(Input{Circle: &c, Phase: domain.StateDead, Member: fixtures.Addr(2)}, v)
	assert.Equal(t, 0, member.DeadFee.Sign())
	assert.Equal(t, fixtures.Units(505), member.Net)

	alive := Calculate(Input{Circle: &c, Phase: domain.StateCreated, Member: c.Creator}, v)
	assert.Equal(t, 0, alive.DeadFee.Sign())
}

func TestCalculate_RecordedDeadFeeNotDoubleCounted(t *testing.T) {
	b := fixtures.NewBuilder("3")
	c := fixtures.Circle("3", t0)
	recorded := big.NewInt(12345)
	v := build(t,
		b.DeadFee(c.Creator, recorded, t0),
		b.CollateralWithdrawn(c.Creator, fixtures.Units(1), t0.Add(time.Minute)),
	)

	got := Calculate(Input{Circle: &c, Phase: DerivedPhase(c.State, v), Member: c.Creator}, v)
	assert.Equal(t, recorded, got.DeadFee)
	assert.True(t, got.Withdrawn)
}

func assertAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	assert.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
}
