// Package deadline turns a circle's anchor timestamps into concrete deadlines.
package deadline

import (
	"time"

	"circlepot/internal/domain"
	"circlepot/internal/policy"
)

// Anchors are the inputs every deadline is derived from.
type Anchors struct {
	CreatedAt time.Time
	StartedAt time.Time // zero when the circle never started
	Frequency domain.Frequency
}

// AnchorsOf extracts the anchors of a circle summary.
func AnchorsOf(c *domain.Circle) Anchors {
	return Anchors{
		CreatedAt: c.CreatedAt,
		StartedAt: c.StartedAt,
		Frequency: c.Frequency,
	}
}

// Calculator computes deadlines for one circle.
type Calculator struct {
	anchors Anchors
}

// NewCalculator creates a Calculator over anchors.
func NewCalculator(anchors Anchors) *Calculator {
	return &Calculator{anchors: anchors}
}

// Ultimatum is createdAt + ultimatum period.
func (c *Calculator) Ultimatum() time.Time {
	return c.anchors.CreatedAt.Add(policy.UltimatumPeriod(c.anchors.Frequency))
}

// UltimatumPassed reports whether now is at or past the ultimatum.
func (c *Calculator) UltimatumPassed(now time.Time) bool {
	return !now.Before(c.Ultimatum())
}

// BaseRoundDeadline is startedAt + (round-1) periods, pushed later to the
// previous round's payout time when that payout landed after the schedule.
// prevPayout is the zero time when round-1 has no payout.
func (c *Calculator) BaseRoundDeadline(round int, prevPayout time.Time) (time.Time, error) {
	if c.anchors.StartedAt.IsZero() {
		return time.Time{}, domain.ErrNotStarted
	}
	if round < 1 {
		return time.Time{}, domain.ErrNoActiveRound
	}

	scheduled := policy.AddRounds(c.anchors.StartedAt, c.anchors.Frequency, round-1)
	if prevPayout.After(scheduled) {
		return prevPayout, nil
	}
	return scheduled, nil
}

// ContributionDeadline is the base round deadline plus the grace period.
func (c *Calculator) ContributionDeadline(round int, prevPayout time.Time) (time.Time, error) {
	base, err := c.BaseRoundDeadline(round, prevPayout)
	if err != nil {
		return time.Time{}, err
	}
	return base.Add(policy.GracePeriod(c.anchors.Frequency)), nil
}

// ContributionElapsed reports whether now is strictly past the contribution deadline.
func (c *Calculator) ContributionElapsed(round int, prevPayout, now time.Time) (bool, error) {
	deadline, err := c.ContributionDeadline(round, prevPayout)
	if err != nil {
		return false, err
	}
	return now.After(deadline), nil
}

// VotingWindow is the fixed-length window opened by a voting initiation.
type VotingWindow struct {
	Start time.Time
	End   time.Time
}

// NewVotingWindow opens a window at start.
func NewVotingWindow(start time.Time) VotingWindow {
	return VotingWindow{Start: start, End: start.Add(policy.VotingPeriod)}
}

// Open reports start <= now < end.
func (w VotingWindow) Open(now time.Time) bool {
	return !now.Before(w.Start) && now.Before(w.End)
}

// Ended reports now >= end.
func (w VotingWindow) Ended(now time.Time) bool {
	return !now.Before(w.End)
}
