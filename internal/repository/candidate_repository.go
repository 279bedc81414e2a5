package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/rs/zerolog"
)

// CandidateRepository writes the integrity columns of the candidate record.
// Only the scoring path writes risk columns and only malpractice marking
// writes the malpractice flag.
type CandidateRepository interface {
	GetIntegrity(ctx context.Context, candidateID string) (*models.CandidateIntegrity, error)
	UpdateRisk(ctx context.Context, candidateID string, assessment models.RiskAssessment) error
	MarkMalpractice(ctx context.Context, candidateID string) error
}

type candidateRepository struct {
	*PostgresRepository
}

func NewCandidateRepository(db *sql.DB, logger zerolog.Logger) CandidateRepository {
	return &candidateRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *candidateRepository) GetIntegrity(ctx context.Context, candidateID string) (*models.CandidateIntegrity, error) {
	query := `
		SELECT id, interview_id, status, interview_status, malpractice,
			risk_score, risk_level, proctoring_summary, updated_at
		FROM candidates
		WHERE id = $1
	`

	var (
		c       models.CandidateIntegrity
		status  string
		istatus string
		level   string
		summary []byte
	)
	err := r.db.QueryRowContext(ctx, query, candidateID).Scan(
		&c.CandidateID,
		&c.InterviewID,
		&status,
		&istatus,
		&c.Malpractice,
		&c.RiskScore,
		&level,
		&summary,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	c.Status = models.CandidateStatus(status)
	c.InterviewStatus = models.InterviewStatus(istatus)
	c.RiskLevel = models.RiskLevel(level)
	c.ProctoringSummary = summary

	return &c, nil
}

func (r *candidateRepository) UpdateRisk(ctx context.Context, candidateID string, assessment models.RiskAssessment) error {
	summary, err := json.Marshal(assessment.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal proctoring summary: %w", err)
	}

	query := `
		UPDATE candidates
		SET risk_score = $2, risk_level = $3, proctoring_summary = $4, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, candidateID, assessment.Score, assessment.Level.String(), summary)
	if err != nil {
		return fmt.Errorf("failed to update candidate risk: %w", err)
	}

	return expectOneRow(res)
}

func (r *candidateRepository) MarkMalpractice(ctx context.Context, candidateID string) error {
	query := `
		UPDATE candidates
		SET malpractice = TRUE, status = $2, interview_status = $3, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		candidateID,
		string(models.CandidateStatusRejected),
		string(models.InterviewStatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to mark malpractice: %w", err)
	}

	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.ErrCandidateNotFound
	}
	return nil
}
