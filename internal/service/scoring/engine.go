// Package scoring turns a session's proctoring history into a risk assessment.
package scoring

import "github.com/RubachokBoss/interview-proctoring/internal/models"

const (
	HighThreshold   = 50
	MediumThreshold = 20
)

var weights = map[models.EventType]int{
	models.EventTypeTabSwitch:      5,
	models.EventTypeFullscreenExit: 10,
	models.EventTypeFaceMissing:    2,
	models.EventTypeMultipleFaces:  20,
	models.EventTypeCopyPaste:      15,
	models.EventTypeMicMuted:       1,
	models.EventTypeCamOff:         5,
}

// Weight returns the additive score of one occurrence of t. Unknown types weigh 0.
func Weight(t models.EventType) int {
	return weights[t]
}

// Classify maps a total score onto a risk level.
func Classify(score int) models.RiskLevel {
	switch {
	case score >= HighThreshold:
		return models.RiskLevelHigh
	case score >= MediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// Recompute scores the complete event history of one session. It is pure:
// the result depends only on the multiset of event types in events.
func Recompute(events []models.ProctoringEvent) models.RiskAssessment {
	var (
		score   int
		summary models.ProctoringSummary
	)

	for _, e := range events {
		score += Weight(e.EventType)

		switch e.EventType {
		case models.EventTypeTabSwitch:
			summary.TabSwitches++
		case models.EventTypeFullscreenExit:
			summary.FullscreenExits++
		case models.EventTypeFaceMissing:
			summary.FaceMissing++
		case models.EventTypeMultipleFaces:
			summary.MultipleFaces++
		case models.EventTypeCopyPaste:
			summary.CopyPaste++
		}
	}

	return models.RiskAssessment{
		Score:   score,
		Level:   Classify(score),
		Summary: summary,
	}
}
