package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/go-chi/chi/v5"
)

// LogEvent is the write boundary for proctoring events. It answers with the
// {success, error?} result rather than the usual envelope.
func (h *Handler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var req models.LogEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.LogEventResult{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" || strings.TrimSpace(req.InterviewID) == "" || strings.TrimSpace(req.EventType.String()) == "" {
		writeJSON(w, http.StatusBadRequest, models.LogEventResult{Error: "candidate_id, interview_id and event_type are required"})
		return
	}

	result := h.eventLogService.LogEvent(r.Context(), req.CandidateID, req.InterviewID, req.EventType, req.Details)
	if !result.Success {
		status := http.StatusInternalServerError
		if errors.Is(result.Err, models.ErrInvalidEvent) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, result)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	events, err := h.eventLogService.ListEvents(r.Context(), candidateID, interviewID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}
	if events == nil {
		events = []models.ProctoringEvent{}
	}

	writeSuccess(w, events)
}

func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	risk, err := h.eventLogService.GetRisk(r.Context(), candidateID, interviewID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	writeSuccess(w, risk)
}

func (h *Handler) RecomputeRisk(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	risk, err := h.eventLogService.RecomputeRisk(r.Context(), candidateID, interviewID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	writeSuccess(w, risk)
}

func (h *Handler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidate_id")
	if candidateID == "" {
		writeError(w, http.StatusBadRequest, "Candidate ID is required")
		return
	}

	candidate, err := h.integrityService.GetCandidate(r.Context(), candidateID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	writeSuccess(w, candidate)
}
