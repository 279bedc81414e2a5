package vision

import (
	"encoding/json"
	"time"
)

// Frame is one still taken from the candidate's camera stream.
type Frame struct {
	// PresentationTime is the play position of the frame within the stream.
	PresentationTime time.Duration
	Width            int
	Height           int
	JPEG             []byte
}

func (f Frame) Ready() bool {
	return f.Width > 0 && f.Height > 0
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Detection struct {
	Score float64     `json:"score"`
	Box   BoundingBox `json:"box"`
}

// DetectionList is a finite, single-pass sequence of detections for one frame.
// Entries are decoded on demand by Next; once exhausted it cannot be rewound.
type DetectionList struct {
	raw     []json.RawMessage
	pos     int
	skipped bool
}

func skippedList() *DetectionList {
	return &DetectionList{skipped: true}
}

func newDetectionList(raw []json.RawMessage) *DetectionList {
	return &DetectionList{raw: raw}
}

// NewDetectionList builds a list from already decoded detections.
func NewDetectionList(detections ...Detection) *DetectionList {
	raw := make([]json.RawMessage, 0, len(detections))
	for _, d := range detections {
		data, err := json.Marshal(d)
		if err != nil {
			continue
		}
		raw = append(raw, data)
	}
	return newDetectionList(raw)
}

// Skipped reports that the frame was not evaluated at all (duplicate
// presentation time, stream not ready, detector not initialized).
func (l *DetectionList) Skipped() bool {
	return l == nil || l.skipped
}

// Len is the number of faces found in the frame.
func (l *DetectionList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.raw)
}

func (l *DetectionList) Next() (Detection, bool) {
	for l != nil && l.pos < len(l.raw) {
		item := l.raw[l.pos]
		l.pos++

		var d Detection
		if err := json.Unmarshal(item, &d); err != nil {
			continue
		}
		return d, true
	}
	return Detection{}, false
}
