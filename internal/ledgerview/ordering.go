package ledgerview

import (
	"sort"

	"circlepot/internal/domain"
)

// SortEvents orders events by (timestamp ASC, block ASC, log_index ASC, id ASC).
// The id tiebreak makes the order total, so the result does not depend on
// the order events arrived in.
func SortEvents(events []domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareEvents(a, b domain.Event) int {
	ma, mb := a.Meta(), b.Meta()
	if !ma.Timestamp.Equal(mb.Timestamp) {
		if ma.Timestamp.Before(mb.Timestamp) {
			return -1
		}
		return 1
	}
	if ma.BlockNumber != mb.BlockNumber {
		if ma.BlockNumber < mb.BlockNumber {
			return -1
		}
		return 1
	}
	if ma.LogIndex != mb.LogIndex {
		if ma.LogIndex < mb.LogIndex {
			return -1
		}
		return 1
	}
	if ma.ID != mb.ID {
		if ma.ID < mb.ID {
			return -1
		}
		return 1
	}
	return 0
}

// sameEvent reports whether two events sharing an id carry identical content.
func sameEvent(a, b domain.Event) bool {
	ra, rb := domain.ToRecord(a), domain.ToRecord(b)
	if ra.Amount == nil || rb.Amount == nil {
		if ra.Amount != rb.Amount {
			return false
		}
	} else if ra.Amount.Cmp(rb.Amount) != 0 {
		return false
	}
	return ra.Kind == rb.Kind &&
		ra.CircleID == rb.CircleID &&
		ra.TxHash == rb.TxHash &&
		ra.BlockNumber == rb.BlockNumber &&
		ra.LogIndex == rb.LogIndex &&
		ra.Timestamp.Equal(rb.Timestamp) &&
		ra.Subject == rb.Subject &&
		ra.Counterparty == rb.Counterparty &&
		ra.Round == rb.Round &&
		ra.Position == rb.Position &&
		ra.Choice == rb.Choice &&
		ra.CircleStarted == rb.CircleStarted &&
		ra.StartVotes == rb.StartVotes &&
		ra.WithdrawVotes == rb.WithdrawVotes &&
		ra.VotingStart.Equal(rb.VotingStart) &&
		ra.VotingEnd.Equal(rb.VotingEnd)
}
