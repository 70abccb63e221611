// Package policy holds the protocol's time and money rules as pure functions.
package policy

import (
	"time"

	"circlepot/internal/domain"
)

const (
	day = 24 * time.Hour

	// VotingPeriod is the fixed length of the start vote.
	VotingPeriod = 2 * day
)

// UltimatumPeriod is how long after creation a circle waits before it can be
// voted to start or abandoned.
func UltimatumPeriod(f domain.Frequency) time.Duration {
	if f == domain.FrequencyMonthly {
		return 14 * day
	}
	return 7 * day
}

// GracePeriod is the slack after a round's nominal deadline before lateness
// is enforced.
func GracePeriod(f domain.Frequency) time.Duration {
	if f == domain.FrequencyDaily {
		return 12 * time.Hour
	}
	return 48 * time.Hour
}

// AddRounds advances t by n round periods. Monthly periods follow the
// calendar (time.AddDate), not a fixed number of seconds.
func AddRounds(t time.Time, f domain.Frequency, n int) time.Time {
	switch f {
	case domain.FrequencyDaily:
		return t.AddDate(0, 0, n)
	case domain.FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	default:
		return t.AddDate(0, n, 0)
	}
}

// RoundPeriod returns the length of the round that begins at from.
func RoundPeriod(f domain.Frequency, from time.Time) time.Duration {
	return AddRounds(from, f, 1).Sub(from)
}
