package policy

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlepot/internal/domain"
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), TokenUnit)
}

func TestTemporal_Periods(t *testing.T) {
	tests := []struct {
		freq      domain.Frequency
		ultimatum time.Duration
		grace     time.Duration
	}{
		{domain.FrequencyDaily, 7 * 24 * time.Hour, 12 * time.Hour},
		{domain.FrequencyWeekly, 7 * 24 * time.Hour, 48 * time.Hour},
		{domain.FrequencyMonthly, 14 * 24 * time.Hour, 48 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.freq.String(), func(t *testing.T) {
			assert.Equal(t, tt.ultimatum, UltimatumPeriod(tt.freq))
			assert.Equal(t, tt.grace, GracePeriod(tt.freq))
		})
	}
}

func TestAddRounds_MonthlyIsCalendarAware(t *testing.T) {
	jan := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, time.February, 15, 10, 0, 0, 0, time.UTC), AddRounds(jan, domain.FrequencyMonthly, 1))
	assert.Equal(t, time.Date(2025, time.April, 15, 10, 0, 0, 0, time.UTC), AddRounds(jan, domain.FrequencyMonthly, 3))
	assert.Equal(t, 31*24*time.Hour, RoundPeriod(domain.FrequencyMonthly, jan))

	feb := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 28*24*time.Hour, RoundPeriod(domain.FrequencyMonthly, feb))
}

func TestAddRounds_DailyWeekly(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, start.Add(3*24*time.Hour), AddRounds(start, domain.FrequencyDaily, 3))
	assert.Equal(t, start.Add(14*24*time.Hour), AddRounds(start, domain.FrequencyWeekly, 2))
	assert.Equal(t, start, AddRounds(start, domain.FrequencyWeekly, 0))
}

func TestRequiredCollateral(t *testing.T) {
	// 100 × 5 × 1.01 = 505
	assert.Equal(t, big.NewInt(505), RequiredCollateral(big.NewInt(100), 5))
	assert.Equal(t, units(505), RequiredCollateral(units(100), 5))

	// Buffer truncates toward zero: 33 × 3 = 99, 1% of 99 = 0
	assert.Equal(t, big.NewInt(99), RequiredCollateral(big.NewInt(33), 3))
}

func TestPayoutAmount(t *testing.T) {
	assert.Equal(t, big.NewInt(495), PayoutAmount(big.NewInt(100), 5, false))
	assert.Equal(t, big.NewInt(500), PayoutAmount(big.NewInt(100), 5, true))
	assert.Equal(t, units(495), PayoutAmount(units(100), 5, false))
}

func TestEffectiveMembers(t *testing.T) {
	c := &domain.Circle{MaxMembers: 10, CurrentMembers: 7, State: domain.StateActive}
	assert.Equal(t, 10, EffectiveMembers(c, domain.StateCreated))
	assert.Equal(t, 7, EffectiveMembers(c, domain.StateActive))
	assert.Equal(t, 7, EffectiveMembers(c, domain.StateCompleted))

	// Nominally active but derived dead.
	assert.Equal(t, 10, EffectiveMembers(c, domain.StateDead))
}

func TestDeadCircleFee(t *testing.T) {
	assert.Equal(t, 0, DeadCircleFee(false, domain.VisibilityPrivate).Sign())
	assert.Equal(t, TokenUnit, DeadCircleFee(true, domain.VisibilityPrivate))

	half, ok := new(big.Int).SetString("500000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, half, DeadCircleFee(true, domain.VisibilityPublic))
}

func TestMinMembersToStart_RoundsUp(t *testing.T) {
	tests := map[int]int{1: 1, 2: 2, 3: 2, 5: 3, 7: 5, 10: 6, 11: 7, 20: 12}
	for max, want := range tests {
		assert.Equal(t, want, MinMembersToStart(max), "max members %d", max)
	}
}

func TestEarlyWithdrawalPenaltyBp_Tiers(t *testing.T) {
	tests := []struct {
		progress int64
		want     int64
	}{
		{0, 100},
		{2499, 100},
		{2500, 60},
		{4000, 60},
		{4999, 60},
		{5000, 30},
		{7499, 30},
		{7500, 10},
		{9999, 10},
		{10000, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EarlyWithdrawalPenaltyBp(tt.progress), "progress %d", tt.progress)
	}
}

func TestQuoteWithdrawal(t *testing.T) {
	// 40% progress -> 0.6% penalty on the requested amount.
	q, err := QuoteWithdrawal(units(100), units(40), units(100))
	require.NoError(t, err)
	assert.Equal(t, PathEarly, q.Path)
	assert.Equal(t, int64(4000), q.ProgressBp)
	assert.Equal(t, int64(60), q.PenaltyBp)
	assert.Equal(t, "0.60", FormatAmount(q.Penalty, 2))
	assert.Equal(t, "99.40", FormatAmount(q.Net, 2))

	// Goal reached -> complete path, no penalty.
	q, err = QuoteWithdrawal(units(100), units(120), units(100))
	require.NoError(t, err)
	assert.Equal(t, PathComplete, q.Path)
	assert.Equal(t, int64(0), q.Penalty.Int64())
	assert.Equal(t, units(100), q.Net)

	_, err = QuoteWithdrawal(units(1), units(1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestFormatAndParseAmount(t *testing.T) {
	assert.Equal(t, "505.00", FormatAmount(units(505), 2))
	assert.Equal(t, "0.50", FormatAmount(DeadCircleFee(true, domain.VisibilityPublic), 2))
	assert.Equal(t, "", FormatAmount(nil, 2))

	v, err := ParseAmount("12.5")
	require.NoError(t, err)
	assert.Equal(t, "12.500", FormatAmount(v, 3))

	_, err = ParseAmount("twelve")
	assert.Error(t, err)
}

func TestFormatDeadline(t *testing.T) {
	assert.Equal(t, "", FormatDeadline(time.Time{}))
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2025-01-02T03:04:05Z", FormatDeadline(ts))
}
