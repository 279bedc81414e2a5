package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
	"github.com/RubachokBoss/interview-proctoring/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Sessions is the live session registry as seen by the HTTP layer.
type Sessions interface {
	Open(candidateID, interviewID string) (*session.Controller, error)
	Close(candidateID, interviewID string) error
	GiveConsent(ctx context.Context, candidateID, interviewID string) error
	ReportPermissions(ctx context.Context, candidateID, interviewID string, perms session.Permissions) error
	Dispatch(ctx context.Context, candidateID, interviewID string, sig session.Signal) error
	PushFrame(candidateID, interviewID string, frame vision.Frame) error
	View(candidateID, interviewID string) (models.SessionView, error)
	Count() int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	sessions         Sessions
	eventLogService  service.EventLogService
	integrityService service.IntegrityService
	database         Pinger
	broker           Pinger
	metrics          http.Handler
	logger           zerolog.Logger
}

// NewHandler wires the HTTP API. broker and metricsHandler may be nil.
func NewHandler(
	sessions Sessions,
	eventLogService service.EventLogService,
	integrityService service.IntegrityService,
	database Pinger,
	broker Pinger,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		sessions:         sessions,
		eventLogService:  eventLogService,
		integrityService: integrityService,
		database:         database,
		broker:           broker,
		metrics:          metricsHandler,
		logger:           logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics)
	}

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.OpenSession)
			r.Route("/{candidate_id}/{interview_id}", func(r chi.Router) {
				r.Delete("/", h.CloseSession)
				r.Get("/view", h.GetSessionView)
				r.Post("/consent", h.GiveConsent)
				r.Post("/permissions", h.ReportPermissions)
				r.Post("/signals", h.ReportSignal)
				r.Post("/frames", h.PushFrame)
			})
		})

		api.Route("/events", func(r chi.Router) {
			r.Post("/", h.LogEvent)
			r.Get("/{candidate_id}/{interview_id}", h.ListEvents)
		})

		api.Route("/risk/{candidate_id}/{interview_id}", func(r chi.Router) {
			r.Get("/", h.GetRisk)
			r.Post("/recompute", h.RecomputeRisk)
		})

		api.Get("/candidates/{candidate_id}", h.GetCandidate)
	})
}

func sessionParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	candidateID := chi.URLParam(r, "candidate_id")
	interviewID := chi.URLParam(r, "interview_id")
	if candidateID == "" || interviewID == "" {
		writeError(w, http.StatusBadRequest, "Candidate ID and interview ID are required")
		return "", "", false
	}
	return candidateID, interviewID, true
}

func (h *Handler) handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSessionTerminated), errors.Is(err, models.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrPermissionsRequired):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, models.ErrInvalidSignal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrSessionLimit):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, models.ErrCandidateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}
