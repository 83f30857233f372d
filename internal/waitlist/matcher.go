package waitlist

import (
	"sort"

	"github.com/clinicore/waitlist-scheduling/internal/agenda"
)

// Match pairs waiting entries against open slots, greedily and in priority
// order. It is a pure function over its inputs: no I/O, no retained state,
// and it never fails, so callers can re-run it freely after any commit error.
//
// Rules:
//   - only entries with status waiting participate;
//   - entries are served by priority (high first), ties broken by the longer
//     wait (earlier AddedAt first);
//   - an entry matches a slot when the slot's date is one of its preferred
//     dates and the slot's time is one of its preferred times;
//   - among matching slots the first in the original slot order wins;
//   - a slot is handed out at most once per run.
//
// The matching is greedy, not globally optimal: a high-priority entry keeps
// the slot it grabbed even when giving it up would let more entries match.
func Match(entries []Entry, slots []agenda.Slot) []Assignment {
	eligible := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == StatusWaiting {
			eligible = append(eligible, e)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority.Rank() != eligible[j].Priority.Rank() {
			return eligible[i].Priority.Rank() > eligible[j].Priority.Rank()
		}
		return eligible[i].AddedAt.Before(eligible[j].AddedAt)
	})

	usedSlots := make(map[string]struct{}, len(slots))
	var assignments []Assignment

	for _, entry := range eligible {
		wantDates := stringSet(entry.PreferredDates)
		wantTimes := stringSet(entry.PreferredTimes)

		for _, slot := range slots {
			if _, taken := usedSlots[slot.Key()]; taken {
				continue
			}
			if _, ok := wantDates[slot.Date]; !ok {
				continue
			}
			if _, ok := wantTimes[slot.Time]; !ok {
				continue
			}

			usedSlots[slot.Key()] = struct{}{}
			assignments = append(assignments, Assignment{Entry: entry, Slot: slot})
			break
		}
	}

	return assignments
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
