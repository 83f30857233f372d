package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/waitlist-scheduling/internal/waitlist"
)

func createEntryHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		entry, err := svc.AddEntry(r.Context(), waitlist.NewEntryParams{
			PatientID:      patientID,
			Priority:       waitlist.Priority(req.Priority),
			PreferredDates: req.PreferredDates,
			PreferredTimes: req.PreferredTimes,
			Notes:          req.Notes,
		})
		if err != nil {
			handleEntryError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponse(entry))
	}
}

func listEntriesHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *waitlist.Status
		if raw := r.URL.Query().Get("status"); raw != "" {
			st := waitlist.Status(raw)
			if !st.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "status must be waiting, contacted, scheduled or expired")
				return
			}
			status = &st
		}

		limit := queryInt(r, "limit", 0)
		offset := queryInt(r, "offset", 0)

		entries, err := svc.ListEntries(r.Context(), status, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := ListEntriesResponse{Entries: make([]EntryResponse, 0, len(entries))}
		for i := range entries {
			resp.Entries = append(resp.Entries, toEntryResponse(&entries[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getEntryHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := entryID(w, r)
		if !ok {
			return
		}

		entry, err := svc.GetEntry(r.Context(), id)
		if err != nil {
			handleEntryError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func contactEntryHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := entryID(w, r)
		if !ok {
			return
		}

		entry, err := svc.MarkContacted(r.Context(), id)
		if err != nil {
			handleEntryError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func cancelEntryHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := entryID(w, r)
		if !ok {
			return
		}

		entry, err := svc.CancelEntry(r.Context(), id)
		if err != nil {
			handleEntryError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func runAssignmentsHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.RunAssignments(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, waitlist.ErrRunInProgress):
				writeError(w, http.StatusConflict, "run_in_progress", "an assignment run is already in progress, retry shortly")
			case errors.Is(err, waitlist.ErrRunAborted):
				// Part of the run may have committed before the abort.
				writeError(w, http.StatusBadGateway, "run_aborted", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, toRunResponse(result))
	}
}

func entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func handleEntryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry_not_found", err.Error())
	case errors.Is(err, waitlist.ErrPatientIDRequired):
		writeError(w, http.StatusBadRequest, "invalid_patient_id", err.Error())
	case errors.Is(err, waitlist.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, "invalid_priority", err.Error())
	case errors.Is(err, waitlist.ErrInvalidDateFormat):
		writeError(w, http.StatusBadRequest, "invalid_preferred_dates", err.Error())
	case errors.Is(err, waitlist.ErrInvalidTimeFormat):
		writeError(w, http.StatusBadRequest, "invalid_preferred_times", err.Error())
	case errors.Is(err, waitlist.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
