package waitlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/waitlist-scheduling/internal/agenda"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for sorting: higher rank goes first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusContacted Status = "contacted"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusContacted, StatusScheduled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether a status change is allowed. Scheduled and
// expired are terminal.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusWaiting:
		return to == StatusContacted || to == StatusScheduled || to == StatusExpired
	case StatusContacted:
		return to == StatusScheduled || to == StatusExpired
	}
	return false
}

// Entry is one patient's request to be scheduled once a matching slot opens.
// PreferredDates and PreferredTimes are independent sets: a slot matches when
// its date is in PreferredDates and its time is in PreferredTimes, in any
// combination.
type Entry struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	Priority       Priority
	PreferredDates []string // YYYY-MM-DD
	PreferredTimes []string // HH:MM
	Notes          *string
	Status         Status
	AddedAt        time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time
}

// Assignment pairs one waiting entry with one open slot. It is a proposal,
// not a booking: committing it against the agenda backend happens later.
type Assignment struct {
	Entry Entry
	Slot  agenda.Slot
}

type EventLog struct {
	ID        int64
	EventType string
	EntryID   *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
