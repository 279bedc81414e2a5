package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []models.EventType
	details []models.EventDetails
	risks   []models.RiskAssessment
	fail    bool
}

func (s *recordingSink) LogEvent(ctx context.Context, candidateID, interviewID string, eventType models.EventType, details json.RawMessage) models.LogEventResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d models.EventDetails
	_ = json.Unmarshal(details, &d)
	s.events = append(s.events, eventType)
	s.details = append(s.details, d)

	if s.fail {
		return models.LogEventResult{Error: "connection refused"}
	}

	res := models.LogEventResult{Success: true, EventID: "evt"}
	if len(s.risks) > 0 {
		risk := s.risks[0]
		s.risks = s.risks[1:]
		res.Risk = &risk
	}
	return res
}

func (s *recordingSink) count(eventType models.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) detailsFor(eventType models.EventType) []models.EventDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EventDetails
	for i, e := range s.events {
		if e == eventType {
			out = append(out, s.details[i])
		}
	}
	return out
}

type countingMarker struct {
	calls atomic.Int32
	err   error
}

func (m *countingMarker) MarkMalpractice(ctx context.Context, candidateID, interviewID, reason string) error {
	m.calls.Add(1)
	return m.err
}

type countingCall struct {
	started atomic.Bool
	stops   atomic.Int32
}

func (c *countingCall) IsStarted() bool { return c.started.Load() }

func (c *countingCall) Stop() {
	c.stops.Add(1)
	c.started.Store(false)
}

type fakeDetector struct {
	initErr  error
	faces    atomic.Int32
	entered  chan struct{}
	release  chan struct{}
	disposed atomic.Bool
}

func (d *fakeDetector) Initialize(ctx context.Context) error { return d.initErr }

func (d *fakeDetector) Detect(ctx context.Context, frame vision.Frame) (*vision.DetectionList, error) {
	if d.entered != nil {
		select {
		case d.entered <- struct{}{}:
		default:
		}
	}
	if d.release != nil {
		<-d.release
	}

	detections := make([]vision.Detection, d.faces.Load())
	for i := range detections {
		detections[i] = vision.Detection{Score: 0.9}
	}
	return vision.NewDetectionList(detections...), nil
}

func (d *fakeDetector) Dispose() { d.disposed.Store(true) }

type recordingMedia struct {
	src MediaSource
	err error

	mu      sync.Mutex
	streams []MediaStream
}

func (m *recordingMedia) Acquire(ctx context.Context) (MediaStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, err := m.src.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *recordingMedia) liveTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.streams {
		for _, t := range s.Tracks() {
			if t.Live() {
				n++
			}
		}
	}
	return n
}

type fakeLatch struct {
	claimed bool
	err     error
}

func (l *fakeLatch) Claim(ctx context.Context, key string) (bool, error) {
	return l.claimed, l.err
}

type fakeEvidence struct {
	puts atomic.Int32
}

func (e *fakeEvidence) CaptureSnapshot(ctx context.Context, candidateID, interviewID string, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", errors.New("empty snapshot")
	}
	e.puts.Add(1)
	return "snapshots/" + candidateID + "/" + interviewID + "/evt.jpg", nil
}
