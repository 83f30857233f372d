package waitlist

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/waitlist-scheduling/internal/agenda"
)

func entry(priority Priority, dates, times []string, addedAt time.Time) Entry {
	return Entry{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		Priority:       priority,
		PreferredDates: dates,
		PreferredTimes: times,
		Status:         StatusWaiting,
		AddedAt:        addedAt,
	}
}

func slot(date, tm string) agenda.Slot {
	return agenda.Slot{Date: date, Time: tm, DurationMinutes: 30}
}

func TestMatch_HigherPriorityWinsOverLongerWait(t *testing.T) {
	low := entry(PriorityLow, []string{"2024-05-01"}, []string{"10:00"}, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	high := entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))

	got := Match([]Entry{low, high}, []agenda.Slot{slot("2024-05-01", "10:00")})

	require.Len(t, got, 1)
	assert.Equal(t, high.ID, got[0].Entry.ID, "high priority entry should win despite being added later")
}

func TestMatch_TieBrokenByLongerWait(t *testing.T) {
	later := entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC))
	earlier := entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	got := Match([]Entry{later, earlier}, []agenda.Slot{slot("2024-05-01", "10:00")})

	require.Len(t, got, 1)
	assert.Equal(t, earlier.ID, got[0].Entry.ID, "same priority, longer wait should win")
}

func TestMatch_NoOverlapYieldsNothing(t *testing.T) {
	e := entry(PriorityHigh, []string{"2024-05-02"}, []string{"09:00"}, time.Now())

	got := Match([]Entry{e}, []agenda.Slot{slot("2024-05-01", "10:00")})

	assert.Empty(t, got)
}

func TestMatch_NonWaitingEntriesExcluded(t *testing.T) {
	e := entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, time.Now())
	e.Status = StatusScheduled

	got := Match([]Entry{e}, []agenda.Slot{slot("2024-05-01", "10:00")})

	assert.Empty(t, got)
}

func TestMatch_CrossProductPreferences(t *testing.T) {
	// Dates and times are independent sets: (2024-05-02, 09:00) was never
	// jointly listed but must still match.
	e := entry(PriorityMedium,
		[]string{"2024-05-01", "2024-05-02"},
		[]string{"09:00", "10:00"},
		time.Now())

	got := Match([]Entry{e}, []agenda.Slot{slot("2024-05-02", "09:00")})

	require.Len(t, got, 1)
	assert.Equal(t, "2024-05-02", got[0].Slot.Date)
	assert.Equal(t, "09:00", got[0].Slot.Time)
}

func TestMatch_SlotUsedAtMostOnce(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	a := entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, base)
	b := entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, base.Add(time.Hour))

	got := Match([]Entry{a, b}, []agenda.Slot{slot("2024-05-01", "10:00")})

	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].Entry.ID)
}

func TestMatch_FirstCandidateInSlotOrderWins(t *testing.T) {
	e := entry(PriorityHigh, []string{"2024-05-01", "2024-05-02"}, []string{"10:00"}, time.Now())
	slots := []agenda.Slot{
		slot("2024-05-02", "10:00"),
		slot("2024-05-01", "10:00"),
	}

	got := Match([]Entry{e}, slots)

	require.Len(t, got, 1)
	assert.Equal(t, "2024-05-02", got[0].Slot.Date, "first matching slot in input order should be chosen")
}

func TestMatch_GreedyIsNotGloballyOptimal(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	// The high-priority entry can take either slot and grabs the first one.
	// The low-priority entry only matches the first slot, so it goes
	// unserved even though swapping would match both. That is the contract.
	flexible := entry(PriorityHigh, []string{"2024-05-01", "2024-05-02"}, []string{"10:00"}, base)
	constrained := entry(PriorityLow, []string{"2024-05-01"}, []string{"10:00"}, base)

	slots := []agenda.Slot{
		slot("2024-05-01", "10:00"),
		slot("2024-05-02", "10:00"),
	}

	got := Match([]Entry{flexible, constrained}, slots)

	require.Len(t, got, 1)
	assert.Equal(t, flexible.ID, got[0].Entry.ID)
	assert.Equal(t, "2024-05-01", got[0].Slot.Date)
}

func TestMatch_EmptyInputs(t *testing.T) {
	assert.Empty(t, Match(nil, nil))
	assert.Empty(t, Match(nil, []agenda.Slot{slot("2024-05-01", "10:00")}))
	assert.Empty(t, Match([]Entry{entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, time.Now())}, nil))
}

func TestMatch_EmptyPreferencesNeverMatch(t *testing.T) {
	e := entry(PriorityHigh, nil, []string{"10:00"}, time.Now())

	got := Match([]Entry{e}, []agenda.Slot{slot("2024-05-01", "10:00")})

	assert.Empty(t, got)
}

func TestMatch_OutputOrderAndUniqueness(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	entries := []Entry{
		entry(PriorityLow, []string{"2024-05-01", "2024-05-02"}, []string{"09:00", "10:00"}, base),
		entry(PriorityHigh, []string{"2024-05-01"}, []string{"09:00"}, base.Add(2*time.Hour)),
		entry(PriorityMedium, []string{"2024-05-02"}, []string{"10:00"}, base.Add(time.Hour)),
		entry(PriorityHigh, []string{"2024-05-02"}, []string{"10:00"}, base),
	}

	slots := []agenda.Slot{
		slot("2024-05-01", "09:00"),
		slot("2024-05-02", "10:00"),
		slot("2024-05-02", "09:00"),
	}

	got := Match(entries, slots)

	seenEntries := make(map[uuid.UUID]bool)
	seenSlots := make(map[string]bool)
	for _, pair := range got {
		assert.False(t, seenEntries[pair.Entry.ID], "entry appears twice")
		assert.False(t, seenSlots[pair.Slot.Key()], "slot appears twice")
		seenEntries[pair.Entry.ID] = true
		seenSlots[pair.Slot.Key()] = true
		assert.Equal(t, StatusWaiting, pair.Entry.Status)
	}

	// Output follows sorted-entry order: priority desc, then wait time.
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1].Entry, got[i].Entry
		if prev.Priority.Rank() == cur.Priority.Rank() {
			assert.False(t, cur.AddedAt.Before(prev.AddedAt),
				"within equal priority, earlier entries must come first")
		} else {
			assert.Greater(t, prev.Priority.Rank(), cur.Priority.Rank())
		}
	}
}

func TestMatch_Deterministic(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		entry(PriorityMedium, []string{"2024-05-01"}, []string{"09:00", "10:00"}, base),
		entry(PriorityHigh, []string{"2024-05-01"}, []string{"10:00"}, base.Add(time.Hour)),
	}
	slots := []agenda.Slot{
		slot("2024-05-01", "09:00"),
		slot("2024-05-01", "10:00"),
	}

	first := Match(entries, slots)
	second := Match(entries, slots)

	assert.Equal(t, first, second, "identical inputs must yield identical output")
}
