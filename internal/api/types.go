package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/waitlist-scheduling/internal/waitlist"
)

type CreateEntryRequest struct {
	PatientID      string   `json:"patient_id"`
	Priority       string   `json:"priority"`
	PreferredDates []string `json:"preferred_dates"`
	PreferredTimes []string `json:"preferred_times"`
	Notes          *string  `json:"notes,omitempty"`
}

type EntryResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	Priority       string     `json:"priority"`
	PreferredDates []string   `json:"preferred_dates"`
	PreferredTimes []string   `json:"preferred_times"`
	Notes          *string    `json:"notes,omitempty"`
	Status         string     `json:"status"`
	AddedAt        time.Time  `json:"added_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func toEntryResponse(e *waitlist.Entry) EntryResponse {
	return EntryResponse{
		ID:             e.ID,
		PatientID:      e.PatientID,
		Priority:       string(e.Priority),
		PreferredDates: e.PreferredDates,
		PreferredTimes: e.PreferredTimes,
		Notes:          e.Notes,
		Status:         string(e.Status),
		AddedAt:        e.AddedAt,
		UpdatedAt:      e.UpdatedAt,
		ExpiresAt:      e.ExpiresAt,
	}
}

type ListEntriesResponse struct {
	Entries []EntryResponse `json:"entries"`
}

type CommittedPairResponse struct {
	EntryID   uuid.UUID `json:"entry_id"`
	PatientID uuid.UUID `json:"patient_id"`
	BookingID uuid.UUID `json:"booking_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
}

type RunResponse struct {
	Waiting   int                     `json:"waiting"`
	Slots     int                     `json:"slots"`
	Proposed  int                     `json:"proposed"`
	Conflicts int                     `json:"conflicts"`
	Committed []CommittedPairResponse `json:"committed"`
}

func toRunResponse(res *waitlist.RunResult) RunResponse {
	committed := make([]CommittedPairResponse, 0, len(res.Committed))
	for _, c := range res.Committed {
		committed = append(committed, CommittedPairResponse{
			EntryID:   c.Entry.ID,
			PatientID: c.Entry.PatientID,
			BookingID: c.BookingID,
			Date:      c.Slot.Date,
			Time:      c.Slot.Time,
		})
	}

	return RunResponse{
		Waiting:   res.WaitingCount,
		Slots:     res.SlotCount,
		Proposed:  len(res.Proposed),
		Conflicts: res.Conflicts,
		Committed: committed,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
