package members

import (
	"circlepot/internal/domain"
	"circlepot/internal/ledgerview"
)

// LateMembers returns members in default for the circle's current round:
// every member except those who contributed and the round's recipient.
// A forfeiture for the round settles the member's contribution from
// collateral, so forfeited members are not late either.
// Outside the Active phase the set is empty.
func LateMembers(phase domain.CircleState, round int, roster *Roster, view *ledgerview.View) []string {
	if phase != domain.StateActive {
		return []string{}
	}

	contributed := view.ContributorsForRound(round)
	for _, f := range view.Forfeitures() {
		if f.Round == round {
			contributed[f.Member] = true
		}
	}
	recipient, _ := roster.Recipient(round)

	late := []string{}
	for _, slot := range roster.Slots() {
		if slot.Address == recipient || contributed[slot.Address] {
			continue
		}
		late = append(late, slot.Address)
	}
	return late
}
