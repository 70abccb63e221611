// Package members derives payout order and default status of circle members.
package members

import (
	"sort"

	"circlepot/internal/domain"
	"circlepot/internal/ledgerview"
)

// Roster is the ordered member set of a circle.
type Roster struct {
	slots      []domain.MemberSlot
	byAddress  map[string]domain.MemberSlot
	byPosition map[int]string
}

// BuildRoster combines explicit assignments with join order.
//
// Assigned positions are authoritative. Members without an assignment are
// ranked by join order (the creator first unless it has a recorded join) and
// take positions after the highest assigned one; before any assignment this
// is plain 1-indexed join order.
func BuildRoster(creator string, view *ledgerview.View) *Roster {
	r := &Roster{
		byAddress:  make(map[string]domain.MemberSlot),
		byPosition: make(map[int]string),
	}

	maxAssigned := 0
	for _, pa := range view.Positions() {
		slot := domain.MemberSlot{Address: pa.Member, Position: pa.Position, Assigned: true}
		r.add(slot)
		if pa.Position > maxAssigned {
			maxAssigned = pa.Position
		}
	}

	var joinOrder []string
	seen := make(map[string]bool)
	joins := view.Joins()
	creatorJoined := false
	for _, j := range joins {
		if j.Member == creator {
			creatorJoined = true
		}
	}
	if creator != "" && !creatorJoined {
		joinOrder = append(joinOrder, creator)
		seen[creator] = true
	}
	for _, j := range joins {
		if !seen[j.Member] {
			joinOrder = append(joinOrder, j.Member)
			seen[j.Member] = true
		}
	}

	next := maxAssigned + 1
	for _, m := range joinOrder {
		if _, ok := r.byAddress[m]; ok {
			continue
		}
		r.add(domain.MemberSlot{Address: m, Position: next})
		next++
	}

	sort.Slice(r.slots, func(i, j int) bool {
		return r.slots[i].Position < r.slots[j].Position
	})
	return r
}

func (r *Roster) add(slot domain.MemberSlot) {
	r.slots = append(r.slots, slot)
	r.byAddress[slot.Address] = slot
	r.byPosition[slot.Position] = slot.Address
}

// Slots returns members ordered by position.
func (r *Roster) Slots() []domain.MemberSlot {
	return append([]domain.MemberSlot(nil), r.slots...)
}

// Len returns the number of members.
func (r *Roster) Len() int {
	return len(r.slots)
}

// IsMember reports whether addr belongs to the circle.
func (r *Roster) IsMember(addr string) bool {
	_, ok := r.byAddress[addr]
	return ok
}

// Position returns the payout position of addr, or 0.
func (r *Roster) Position(addr string) int {
	return r.byAddress[addr].Position
}

// Recipient returns the member whose position equals round.
func (r *Roster) Recipient(round int) (string, bool) {
	addr, ok := r.byPosition[round]
	return addr, ok
}
