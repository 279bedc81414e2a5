package models

import "time"

// SignalMessage is a browser signal relayed by the client gateway over the queue.
type SignalMessage struct {
	CandidateID string    `json:"candidate_id"`
	InterviewID string    `json:"interview_id"`
	Kind        string    `json:"kind"`
	Value       *bool     `json:"value,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type RiskUpdatedEvent struct {
	CandidateID string            `json:"candidate_id"`
	InterviewID string            `json:"interview_id"`
	Score       int               `json:"score"`
	Level       RiskLevel         `json:"level"`
	Summary     ProctoringSummary `json:"summary"`
	EventID     string            `json:"event_id"`
	EventType   EventType         `json:"event_type"`
	ComputedAt  time.Time         `json:"computed_at"`
}

type SessionTerminatedEvent struct {
	CandidateID  string    `json:"candidate_id"`
	InterviewID  string    `json:"interview_id"`
	Reason       string    `json:"reason"`
	TerminatedAt time.Time `json:"terminated_at"`
}
