package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/waitlist-scheduling/internal/agenda"
	"github.com/clinicore/waitlist-scheduling/internal/config"
	"github.com/clinicore/waitlist-scheduling/internal/metrics"
	redisclient "github.com/clinicore/waitlist-scheduling/internal/redis"
)

const (
	EventEntryAdded     = "ENTRY_ADDED"
	EventEntryContacted = "ENTRY_CONTACTED"
	EventEntryScheduled = "ENTRY_SCHEDULED"
	EventEntryExpired   = "ENTRY_EXPIRED"
	EventRunCompleted   = "ASSIGN_RUN_COMPLETED"
)

const assignRunLockName = "waitlist-assign"

var (
	ErrRunInProgress     = errors.New("an assignment run is already in progress")
	ErrInvalidPriority   = errors.New("priority must be high, medium or low")
	ErrInvalidDateFormat = errors.New("preferred dates must be YYYY-MM-DD")
	ErrInvalidTimeFormat = errors.New("preferred times must be HH:MM")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPatientIDRequired = errors.New("patient_id is required")
	ErrRunAborted        = errors.New("assignment run aborted")
)

// Scheduler is the service's view of the agenda backend: the open-slots read
// and the booking write. *agenda.Client satisfies it.
type Scheduler interface {
	OpenSlots(ctx context.Context) ([]agenda.Slot, error)
	BookAppointment(ctx context.Context, patientID uuid.UUID, slot agenda.Slot) (*agenda.Booking, error)
}

type Service struct {
	repo      Repository
	scheduler Scheduler
	locker    redisclient.Locker
	cfg       config.Config
	logger    zerolog.Logger
}

func NewService(repo Repository, scheduler Scheduler, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		scheduler: scheduler,
		locker:    locker,
		cfg:       cfg,
		logger:    logger.With().Str("component", "waitlist_service").Logger(),
	}
}

// NewEntryParams is the validated input for adding a patient to the waitlist.
type NewEntryParams struct {
	PatientID      uuid.UUID
	Priority       Priority
	PreferredDates []string
	PreferredTimes []string
	Notes          *string
}

func (p NewEntryParams) validate() error {
	if p.PatientID == uuid.Nil {
		return ErrPatientIDRequired
	}
	if !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	for _, d := range p.PreferredDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDateFormat, d)
		}
	}
	for _, t := range p.PreferredTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimeFormat, t)
		}
	}
	return nil
}

// AddEntry puts a patient on the waiting list. Empty preference sets are
// allowed: such an entry simply never matches until it is edited or expires.
func (s *Service) AddEntry(ctx context.Context, params NewEntryParams) (*Entry, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	entry := &Entry{
		PatientID:      params.PatientID,
		Priority:       params.Priority,
		PreferredDates: params.PreferredDates,
		PreferredTimes: params.PreferredTimes,
		Notes:          params.Notes,
	}
	if s.cfg.EntryTTL > 0 {
		expiresAt := time.Now().Add(s.cfg.EntryTTL)
		entry.ExpiresAt = &expiresAt
	}

	created, err := s.repo.CreateEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}

	s.logEvent(ctx, created.ID, EventEntryAdded, map[string]any{
		"patient_id": created.PatientID.String(),
		"priority":   string(created.Priority),
	})
	metrics.IncEntryAdded(string(created.Priority))

	return created, nil
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, status *Status, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50 // default
	}
	if limit > 200 {
		limit = 200 // max
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.repo.ListEntries(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list waitlist entries: %w", err)
	}
	return entries, nil
}

// MarkContacted records that staff reached out to the patient. The entry
// stays eligible for auto-assignment only while waiting, so a contacted
// entry is excluded from subsequent runs until it is scheduled or expires.
func (s *Service) MarkContacted(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusContacted, EventEntryContacted, nil)
}

// CancelEntry takes an entry off the list by moving it to expired.
func (s *Service) CancelEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusExpired, EventEntryExpired, map[string]any{
		"reason": "cancelled",
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string, payload map[string]any) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}

	if !entry.Status.CanTransition(to) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateEntryStatus(ctx, id, entry.Status, to)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// Status changed between the read and the CAS.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update entry status: %w", err)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	s.logEvent(ctx, updated.ID, eventType, payload)

	return updated, nil
}

// ExpireOverdueEntries is intended to be called by the worker periodically.
func (s *Service) ExpireOverdueEntries(ctx context.Context) error {
	now := time.Now()
	overdue, err := s.repo.FindExpiredEntries(ctx, now)
	if err != nil {
		return fmt.Errorf("find overdue entries: %w", err)
	}

	expired := 0
	for _, entry := range overdue {
		_, err := s.repo.UpdateEntryStatus(ctx, entry.ID, entry.Status, StatusExpired)
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			s.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("failed to expire entry")
			continue
		}
		if err == nil {
			expired++
			s.logEvent(ctx, entry.ID, EventEntryExpired, map[string]any{
				"reason": "ttl",
			})
		}
	}

	metrics.AddEntriesExpired(expired)
	return nil
}

// CommittedAssignment is a proposal the agenda backend accepted, with the
// booking it created.
type CommittedAssignment struct {
	Assignment
	BookingID uuid.UUID
}

// RunResult summarizes one assignment run.
type RunResult struct {
	WaitingCount int
	SlotCount    int
	Proposed     []Assignment
	Committed    []CommittedAssignment
	Conflicts    int // proposals whose slot was taken between snapshot and commit
}

// RunAssignments performs one auto-assignment pass: snapshot the waiting list
// and the open slots, match them, then commit each proposed pair against the
// agenda backend. The whole run executes under a Redis lock, so overlapping
// runs from the worker and the API cannot double-book the same slot.
//
// A slot conflict (another actor booked it after our snapshot) skips only
// that pair. Any other booking failure aborts the remainder of the run; the
// committed pairs stand and the next run picks up the rest.
func (s *Service) RunAssignments(ctx context.Context) (*RunResult, error) {
	var result *RunResult

	err := s.locker.WithRunLock(ctx, assignRunLockName, func(lockCtx context.Context) error {
		var runErr error
		result, runErr = s.runLocked(lockCtx)
		return runErr
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrRunInProgress
		}
		return result, err
	}

	return result, nil
}

func (s *Service) runLocked(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	entries, err := s.repo.ListWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}

	slots, err := s.scheduler.OpenSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch open slots: %w", err)
	}

	proposals := Match(entries, slots)

	result := &RunResult{
		WaitingCount: len(entries),
		SlotCount:    len(slots),
		Proposed:     proposals,
	}

	for _, proposal := range proposals {
		booking, err := s.scheduler.BookAppointment(ctx, proposal.Entry.PatientID, proposal.Slot)
		if err != nil {
			if errors.Is(err, agenda.ErrSlotTaken) {
				// Stale snapshot: someone booked the slot after we read it.
				// The entry stays waiting for the next run.
				result.Conflicts++
				metrics.IncBookingConflict()
				s.logger.Warn().
					Str("entry_id", proposal.Entry.ID.String()).
					Str("slot", proposal.Slot.Key()).
					Msg("slot taken since snapshot, skipping")
				continue
			}
			s.finishRun(ctx, result, start, "aborted")
			return result, fmt.Errorf("%w: book slot %s: %w", ErrRunAborted, proposal.Slot.Key(), err)
		}

		_, err = s.repo.UpdateEntryStatus(ctx, proposal.Entry.ID, StatusWaiting, StatusScheduled)
		if err != nil {
			// The booking stands either way; a CAS miss means the entry
			// changed status concurrently and needs operator attention.
			s.logger.Error().Err(err).
				Str("entry_id", proposal.Entry.ID.String()).
				Str("booking_id", booking.ID.String()).
				Msg("booked slot but failed to mark entry scheduled")
		}

		result.Committed = append(result.Committed, CommittedAssignment{
			Assignment: proposal,
			BookingID:  booking.ID,
		})

		s.logEvent(ctx, proposal.Entry.ID, EventEntryScheduled, map[string]any{
			"booking_id": booking.ID.String(),
			"date":       proposal.Slot.Date,
			"time":       proposal.Slot.Time,
		})
		metrics.IncEntryScheduled()
	}

	s.finishRun(ctx, result, start, "completed")
	return result, nil
}

func (s *Service) finishRun(ctx context.Context, result *RunResult, start time.Time, outcome string) {
	s.logEvent(ctx, uuid.Nil, EventRunCompleted, map[string]any{
		"outcome":   outcome,
		"waiting":   result.WaitingCount,
		"slots":     result.SlotCount,
		"proposed":  len(result.Proposed),
		"committed": len(result.Committed),
		"conflicts": result.Conflicts,
	})
	metrics.ObserveAssignRun(outcome, time.Since(start))

	s.logger.Info().
		Str("outcome", outcome).
		Int("waiting", result.WaitingCount).
		Int("slots", result.SlotCount).
		Int("proposed", len(result.Proposed)).
		Int("committed", len(result.Committed)).
		Int("conflicts", result.Conflicts).
		Dur("elapsed", time.Since(start)).
		Msg("assignment run finished")
}

func (s *Service) logEvent(ctx context.Context, entryID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if entryID != uuid.Nil {
		id := entryID
		ev.EntryID = &id
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("entry_id", entryID.String()).
			Msg("failed to insert event log")
	}
}
