package models

import "time"

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

func (l RiskLevel) String() string {
	return string(l)
}

// ProctoringSummary breaks the history down per UI-relevant event type.
// MIC_MUTED and CAM_OFF are scored but intentionally not counted here.
type ProctoringSummary struct {
	TabSwitches     int `json:"tab_switches"`
	FullscreenExits int `json:"fullscreen_exits"`
	FaceMissing     int `json:"face_missing"`
	MultipleFaces   int `json:"multiple_faces"`
	CopyPaste       int `json:"copy_paste"`
}

type RiskAssessment struct {
	Score   int               `json:"score"`
	Level   RiskLevel         `json:"level"`
	Summary ProctoringSummary `json:"summary"`
}

type SessionRisk struct {
	CandidateID string         `json:"candidate_id"`
	InterviewID string         `json:"interview_id"`
	Assessment  RiskAssessment `json:"assessment"`
	EventCount  int            `json:"event_count"`
	ComputedAt  time.Time      `json:"computed_at"`
}
