package models

import (
	"encoding/json"
	"time"
)

type CandidateStatus string

const (
	CandidateStatusApplied     CandidateStatus = "applied"
	CandidateStatusShortlisted CandidateStatus = "shortlisted"
	CandidateStatusRejected    CandidateStatus = "rejected"
)

type InterviewStatus string

const (
	InterviewStatusPending    InterviewStatus = "pending"
	InterviewStatusInProgress InterviewStatus = "in_progress"
	InterviewStatusCompleted  InterviewStatus = "completed"
)

// CandidateIntegrity is the slice of the candidate record owned by proctoring.
type CandidateIntegrity struct {
	CandidateID       string          `json:"candidate_id" db:"id"`
	InterviewID       string          `json:"interview_id" db:"interview_id"`
	Status            CandidateStatus `json:"status" db:"status"`
	InterviewStatus   InterviewStatus `json:"interview_status" db:"interview_status"`
	Malpractice       bool            `json:"malpractice" db:"malpractice"`
	RiskScore         int             `json:"risk_score" db:"risk_score"`
	RiskLevel         RiskLevel       `json:"risk_level" db:"risk_level"`
	ProctoringSummary json.RawMessage `json:"proctoring_summary,omitempty" db:"proctoring_summary"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}
