package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/repository"
	"github.com/RubachokBoss/interview-proctoring/internal/worker/queue"
	"github.com/rs/zerolog"
)

type IntegrityService interface {
	MarkMalpractice(ctx context.Context, candidateID, interviewID, reason string) error
	GetCandidate(ctx context.Context, candidateID string) (*models.CandidateIntegrity, error)
}

type integrityService struct {
	candidateRepo       repository.CandidateRepository
	publisher           queue.Publisher
	terminateRoutingKey string
	logger              zerolog.Logger
}

func NewIntegrityService(
	candidateRepo repository.CandidateRepository,
	publisher queue.Publisher,
	terminateRoutingKey string,
	logger zerolog.Logger,
) IntegrityService {
	return &integrityService{
		candidateRepo:       candidateRepo,
		publisher:           publisher,
		terminateRoutingKey: terminateRoutingKey,
		logger:              logger,
	}
}

// MarkMalpractice flags the candidate, rejects them and ends their interview.
// Nothing in this service ever clears the flag.
func (s *integrityService) MarkMalpractice(ctx context.Context, candidateID, interviewID, reason string) error {
	if err := s.candidateRepo.MarkMalpractice(ctx, candidateID); err != nil {
		return fmt.Errorf("failed to mark malpractice for %s: %w", candidateID, err)
	}

	s.logger.Warn().
		Str("candidate_id", candidateID).
		Str("interview_id", interviewID).
		Str("reason", reason).
		Msg("Candidate marked for malpractice")

	event := models.SessionTerminatedEvent{
		CandidateID:  candidateID,
		InterviewID:  interviewID,
		Reason:       reason,
		TerminatedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishJSON(ctx, s.terminateRoutingKey, event); err != nil {
		s.logger.Error().Err(err).Str("candidate_id", candidateID).Msg("Failed to publish session terminated event")
	}

	return nil
}

func (s *integrityService) GetCandidate(ctx context.Context, candidateID string) (*models.CandidateIntegrity, error) {
	return s.candidateRepo.GetIntegrity(ctx, candidateID)
}
