package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeTabSwitch      EventType = "TAB_SWITCH"
	EventTypeFullscreenExit EventType = "FULLSCREEN_EXIT"
	EventTypeFaceMissing    EventType = "FACE_MISSING"
	EventTypeMultipleFaces  EventType = "MULTIPLE_FACES"
	EventTypeCopyPaste      EventType = "COPY_PASTE"
	EventTypeMicMuted       EventType = "MIC_MUTED"
	EventTypeCamOff         EventType = "CAM_OFF"
)

func (t EventType) String() string {
	return string(t)
}

// Known reports whether t is one of the event types the scoring table knows.
// Unknown types are still accepted by the event log.
func (t EventType) Known() bool {
	switch t {
	case EventTypeTabSwitch, EventTypeFullscreenExit, EventTypeFaceMissing,
		EventTypeMultipleFaces, EventTypeCopyPaste, EventTypeMicMuted, EventTypeCamOff:
		return true
	}
	return false
}

// ProctoringEvent is a single immutable entry of a session's integrity history.
type ProctoringEvent struct {
	ID          string          `json:"id" db:"id"`
	CandidateID string          `json:"candidate_id" db:"candidate_id"`
	InterviewID string          `json:"interview_id" db:"interview_id"`
	EventType   EventType       `json:"event_type" db:"event_type"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type EventDetails struct {
	Message     string `json:"message"`
	FaceCount   *int   `json:"face_count,omitempty"`
	SnapshotKey string `json:"snapshot_key,omitempty"`
	Source      string `json:"source,omitempty"`
}

func (d EventDetails) JSON() json.RawMessage {
	data, err := json.Marshal(d)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
