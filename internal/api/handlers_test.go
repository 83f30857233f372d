package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/waitlist-scheduling/internal/agenda"
	"github.com/clinicore/waitlist-scheduling/internal/waitlist"
)

type stubService struct {
	addEntry       func(ctx context.Context, params waitlist.NewEntryParams) (*waitlist.Entry, error)
	getEntry       func(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	listEntries    func(ctx context.Context, status *waitlist.Status, limit, offset int) ([]waitlist.Entry, error)
	markContacted  func(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	cancelEntry    func(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	runAssignments func(ctx context.Context) (*waitlist.RunResult, error)
}

func (s *stubService) AddEntry(ctx context.Context, params waitlist.NewEntryParams) (*waitlist.Entry, error) {
	return s.addEntry(ctx, params)
}

func (s *stubService) GetEntry(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	return s.getEntry(ctx, id)
}

func (s *stubService) ListEntries(ctx context.Context, status *waitlist.Status, limit, offset int) ([]waitlist.Entry, error) {
	return s.listEntries(ctx, status, limit, offset)
}

func (s *stubService) MarkContacted(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	return s.markContacted(ctx, id)
}

func (s *stubService) CancelEntry(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	return s.cancelEntry(ctx, id)
}

func (s *stubService) RunAssignments(ctx context.Context) (*waitlist.RunResult, error) {
	return s.runAssignments(ctx)
}

func newTestRouter(svc WaitlistService) http.Handler {
	return NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateEntry(t *testing.T) {
	patientID := uuid.New()
	entryID := uuid.New()

	svc := &stubService{
		addEntry: func(ctx context.Context, params waitlist.NewEntryParams) (*waitlist.Entry, error) {
			assert.Equal(t, patientID, params.PatientID)
			assert.Equal(t, waitlist.PriorityHigh, params.Priority)
			return &waitlist.Entry{
				ID:             entryID,
				PatientID:      patientID,
				Priority:       params.Priority,
				PreferredDates: params.PreferredDates,
				PreferredTimes: params.PreferredTimes,
				Status:         waitlist.StatusWaiting,
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/waitlist", CreateEntryRequest{
		PatientID:      patientID.String(),
		Priority:       "high",
		PreferredDates: []string{"2024-05-01"},
		PreferredTimes: []string{"10:00"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, entryID, resp.ID)
	assert.Equal(t, "waiting", resp.Status)
}

func TestCreateEntry_BadRequests(t *testing.T) {
	svc := &stubService{
		addEntry: func(ctx context.Context, params waitlist.NewEntryParams) (*waitlist.Entry, error) {
			return nil, waitlist.ErrInvalidPriority
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantError string
	}{
		{
			name:      "invalid JSON",
			body:      "not json",
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_request_body",
		},
		{
			name:      "bad patient uuid",
			body:      CreateEntryRequest{PatientID: "nope", Priority: "high"},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_patient_id",
		},
		{
			name:      "service rejects priority",
			body:      CreateEntryRequest{PatientID: uuid.NewString(), Priority: "urgent"},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/waitlist", tt.body)

			require.Equal(t, tt.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	svc := &stubService{
		getEntry: func(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
			return nil, waitlist.ErrEntryNotFound
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/waitlist/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEntries_RejectsUnknownStatus(t *testing.T) {
	svc := &stubService{}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/waitlist?status=unknown", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEntries_PassesStatusFilter(t *testing.T) {
	svc := &stubService{
		listEntries: func(ctx context.Context, status *waitlist.Status, limit, offset int) ([]waitlist.Entry, error) {
			require.NotNil(t, status)
			assert.Equal(t, waitlist.StatusWaiting, *status)
			assert.Equal(t, 10, limit)
			return []waitlist.Entry{{ID: uuid.New(), Status: waitlist.StatusWaiting}}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/waitlist?status=waiting&limit=10", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListEntriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 1)
}

func TestContactEntry_InvalidTransition(t *testing.T) {
	svc := &stubService{
		markContacted: func(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
			return nil, waitlist.ErrInvalidTransition
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/waitlist/"+uuid.NewString()+"/contact", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunAssignments(t *testing.T) {
	entryID := uuid.New()
	patientID := uuid.New()
	bookingID := uuid.New()

	svc := &stubService{
		runAssignments: func(ctx context.Context) (*waitlist.RunResult, error) {
			pair := waitlist.Assignment{
				Entry: waitlist.Entry{ID: entryID, PatientID: patientID, Status: waitlist.StatusWaiting},
				Slot:  agenda.Slot{Date: "2024-05-01", Time: "10:00", DurationMinutes: 30},
			}
			return &waitlist.RunResult{
				WaitingCount: 3,
				SlotCount:    2,
				Proposed:     []waitlist.Assignment{pair},
				Committed: []waitlist.CommittedAssignment{
					{Assignment: pair, BookingID: bookingID},
				},
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/assignments/run", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Waiting)
	assert.Equal(t, 1, resp.Proposed)
	require.Len(t, resp.Committed, 1)
	assert.Equal(t, bookingID, resp.Committed[0].BookingID)
	assert.Equal(t, entryID, resp.Committed[0].EntryID)
}

func TestRunAssignments_Busy(t *testing.T) {
	svc := &stubService{
		runAssignments: func(ctx context.Context) (*waitlist.RunResult, error) {
			return nil, waitlist.ErrRunInProgress
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/assignments/run", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestIDMiddleware_EchoesHeader(t *testing.T) {
	svc := &stubService{
		listEntries: func(ctx context.Context, status *waitlist.Status, limit, offset int) ([]waitlist.Entry, error) {
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/waitlist", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()

	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
