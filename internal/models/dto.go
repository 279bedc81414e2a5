package models

import (
	"encoding/json"
	"time"
)

type LogEventRequest struct {
	CandidateID string          `json:"candidate_id"`
	InterviewID string          `json:"interview_id"`
	EventType   EventType       `json:"event_type"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// LogEventResult mirrors the {success, error?} contract of the event log boundary.
type LogEventResult struct {
	Success bool            `json:"success"`
	EventID string          `json:"event_id,omitempty"`
	Risk    *RiskAssessment `json:"risk,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Err is the cause behind Error. It wraps ErrInvalidEvent when the input
	// was rejected before anything was written.
	Err error `json:"-"`
}

// Failed builds an unsuccessful result from err.
func Failed(err error) LogEventResult {
	return LogEventResult{Error: err.Error(), Err: err}
}

type OpenSessionRequest struct {
	CandidateID string `json:"candidate_id"`
	InterviewID string `json:"interview_id"`
}

type PermissionsRequest struct {
	Camera     string `json:"camera"`
	Microphone string `json:"microphone"`
}

type SignalRequest struct {
	Kind  string `json:"kind"`
	Value *bool  `json:"value,omitempty"`
}

type WarningView struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionView is what the candidate's browser polls to render proctoring UI.
type SessionView struct {
	CandidateID        string          `json:"candidate_id"`
	InterviewID        string          `json:"interview_id"`
	State              string          `json:"state"`
	ConsentGiven       bool            `json:"consent_given"`
	PermissionsGranted bool            `json:"permissions_granted"`
	VisionEnabled      bool            `json:"vision_enabled"`
	FullscreenOverlay  bool            `json:"fullscreen_overlay"`
	PermissionPrompt   string          `json:"permission_prompt,omitempty"`
	TerminalNotice     string          `json:"terminal_notice,omitempty"`
	Redirect           string          `json:"redirect,omitempty"`
	Warnings           []WarningView   `json:"warnings"`
	Commands           []string        `json:"commands,omitempty"`
	Risk               *RiskAssessment `json:"risk,omitempty"`
}

type HealthCheckResponse struct {
	Status         string    `json:"status"`
	Database       bool      `json:"database"`
	RabbitMQ       bool      `json:"rabbitmq"`
	ActiveSessions int       `json:"active_sessions"`
	Timestamp      time.Time `json:"timestamp"`
}
