package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/rs/zerolog"
)

// EventRepository is the append-only proctoring event log.
type EventRepository interface {
	Append(ctx context.Context, event *models.ProctoringEvent) error
	ListByCandidateInterview(ctx context.Context, candidateID, interviewID string) ([]models.ProctoringEvent, error)
	Ping(ctx context.Context) error
}

type eventRepository struct {
	*PostgresRepository
}

func NewEventRepository(db *sql.DB, logger zerolog.Logger) EventRepository {
	return &eventRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *eventRepository) Append(ctx context.Context, event *models.ProctoringEvent) error {
	query := `
		INSERT INTO proctoring_events (id, candidate_id, interview_id, event_type, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	err := r.db.QueryRowContext(ctx, query,
		event.ID,
		event.CandidateID,
		event.InterviewID,
		event.EventType.String(),
		details,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append proctoring event: %w", err)
	}

	return nil
}

func (r *eventRepository) ListByCandidateInterview(ctx context.Context, candidateID, interviewID string) ([]models.ProctoringEvent, error) {
	query := `
		SELECT id, candidate_id, interview_id, event_type, details, created_at
		FROM proctoring_events
		WHERE candidate_id = $1 AND interview_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, candidateID, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proctoring events: %w", err)
	}
	defer rows.Close()

	var events []models.ProctoringEvent
	for rows.Next() {
		var (
			event     models.ProctoringEvent
			eventType string
			details   []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.CandidateID,
			&event.InterviewID,
			&eventType,
			&details,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan proctoring event: %w", err)
		}
		event.EventType = models.EventType(eventType)
		event.Details = details
		events = append(events, event)
	}

	return events, rows.Err()
}
