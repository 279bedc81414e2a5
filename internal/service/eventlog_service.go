package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/metrics"
	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/repository"
	"github.com/RubachokBoss/interview-proctoring/internal/service/scoring"
	"github.com/RubachokBoss/interview-proctoring/internal/worker/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventLogService is the only path that writes proctoring events and the
// risk columns derived from them.
type EventLogService interface {
	LogEvent(ctx context.Context, candidateID, interviewID string, eventType models.EventType, details json.RawMessage) models.LogEventResult
	ListEvents(ctx context.Context, candidateID, interviewID string) ([]models.ProctoringEvent, error)
	RecomputeRisk(ctx context.Context, candidateID, interviewID string) (*models.SessionRisk, error)
	GetRisk(ctx context.Context, candidateID, interviewID string) (*models.SessionRisk, error)
}

type eventLogService struct {
	eventRepo      repository.EventRepository
	candidateRepo  repository.CandidateRepository
	publisher      queue.Publisher
	riskRoutingKey string
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	now            func() time.Time
}

func NewEventLogService(
	eventRepo repository.EventRepository,
	candidateRepo repository.CandidateRepository,
	publisher queue.Publisher,
	riskRoutingKey string,
	m *metrics.Metrics,
	logger zerolog.Logger,
) EventLogService {
	return &eventLogService{
		eventRepo:      eventRepo,
		candidateRepo:  candidateRepo,
		publisher:      publisher,
		riskRoutingKey: riskRoutingKey,
		metrics:        m,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *eventLogService) LogEvent(ctx context.Context, candidateID, interviewID string, eventType models.EventType, details json.RawMessage) models.LogEventResult {
	if strings.TrimSpace(candidateID) == "" || strings.TrimSpace(interviewID) == "" || strings.TrimSpace(eventType.String()) == "" {
		return models.Failed(fmt.Errorf("%w: candidate_id, interview_id and event_type are required", models.ErrInvalidEvent))
	}
	if len(details) > 0 && !json.Valid(details) {
		return models.Failed(fmt.Errorf("%w: details must be valid JSON", models.ErrInvalidEvent))
	}

	log := s.logger.With().
		Str("candidate_id", candidateID).
		Str("interview_id", interviewID).
		Str("event_type", eventType.String()).
		Logger()

	if !eventType.Known() {
		log.Warn().Msg("Logging proctoring event of unknown type")
	}

	event := &models.ProctoringEvent{
		ID:          uuid.New().String(),
		CandidateID: candidateID,
		InterviewID: interviewID,
		EventType:   eventType,
		Details:     details,
		CreatedAt:   s.now(),
	}

	if err := s.eventRepo.Append(ctx, event); err != nil {
		s.metrics.EventLogFailed()
		log.Error().Err(err).Msg("Failed to append proctoring event")
		return models.Failed(err)
	}
	s.metrics.EventLogged(eventType)

	result := models.LogEventResult{Success: true, EventID: event.ID}

	risk, err := s.RecomputeRisk(ctx, candidateID, interviewID)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to recompute risk after event")
		return result
	}
	result.Risk = &risk.Assessment

	s.publishRiskUpdated(ctx, event, risk)

	log.Info().
		Str("event_id", event.ID).
		Int("risk_score", risk.Assessment.Score).
		Str("risk_level", risk.Assessment.Level.String()).
		Msg("Proctoring event logged")

	return result
}

func (s *eventLogService) ListEvents(ctx context.Context, candidateID, interviewID string) ([]models.ProctoringEvent, error) {
	events, err := s.eventRepo.ListByCandidateInterview(ctx, candidateID, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// RecomputeRisk rescores the complete history and overwrites the candidate's
// risk columns with the result.
func (s *eventLogService) RecomputeRisk(ctx context.Context, candidateID, interviewID string) (*models.SessionRisk, error) {
	risk, err := s.GetRisk(ctx, candidateID, interviewID)
	if err != nil {
		return nil, err
	}

	if err := s.candidateRepo.UpdateRisk(ctx, candidateID, risk.Assessment); err != nil {
		return nil, fmt.Errorf("failed to persist risk: %w", err)
	}
	s.metrics.RiskRecomputed(risk.Assessment.Level.String())

	return risk, nil
}

func (s *eventLogService) GetRisk(ctx context.Context, candidateID, interviewID string) (*models.SessionRisk, error) {
	events, err := s.ListEvents(ctx, candidateID, interviewID)
	if err != nil {
		return nil, err
	}

	return &models.SessionRisk{
		CandidateID: candidateID,
		InterviewID: interviewID,
		Assessment:  scoring.Recompute(events),
		EventCount:  len(events),
		ComputedAt:  s.now(),
	}, nil
}

func (s *eventLogService) publishRiskUpdated(ctx context.Context, event *models.ProctoringEvent, risk *models.SessionRisk) {
	msg := models.RiskUpdatedEvent{
		CandidateID: event.CandidateID,
		InterviewID: event.InterviewID,
		Score:       risk.Assessment.Score,
		Level:       risk.Assessment.Level,
		Summary:     risk.Assessment.Summary,
		EventID:     event.ID,
		EventType:   event.EventType,
		ComputedAt:  risk.ComputedAt,
	}

	if err := s.publisher.PublishJSON(ctx, s.riskRoutingKey, msg); err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish risk updated event")
	}
}
