package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/metrics"
	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
	"github.com/rs/zerolog"
)

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

func ParsePermissionState(s string) PermissionState {
	switch PermissionState(s) {
	case PermissionGranted, PermissionDenied:
		return PermissionState(s)
	default:
		return PermissionPrompt
	}
}

type Permissions struct {
	Camera     PermissionState
	Microphone PermissionState
}

func (p Permissions) Granted() bool {
	return p.Camera == PermissionGranted && p.Microphone == PermissionGranted
}

type PermissionProber interface {
	Query(ctx context.Context) (Permissions, error)
}

type MediaTrack interface {
	Kind() string
	Live() bool
	Stop()
}

type MediaStream interface {
	Tracks() []MediaTrack
	CurrentFrame() (vision.Frame, bool)
}

type MediaSource interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

type Display interface {
	EnterFullscreen() error
}

// CallTransport is the external interview call. The controller only reads
// whether it is running and stops it on a hard violation.
type CallTransport interface {
	IsStarted() bool
	Stop()
}

type EventSink interface {
	LogEvent(ctx context.Context, candidateID, interviewID string, eventType models.EventType, details json.RawMessage) models.LogEventResult
}

type MalpracticeMarker interface {
	MarkMalpractice(ctx context.Context, candidateID, interviewID, reason string) error
}

type EvidenceStore interface {
	CaptureSnapshot(ctx context.Context, candidateID, interviewID string, jpeg []byte) (string, error)
}

type FaceDetector interface {
	Initialize(ctx context.Context) error
	Detect(ctx context.Context, frame vision.Frame) (*vision.DetectionList, error)
	Dispose()
}

type TerminationLatch interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Deps are the collaborators of one controller. Detector, Evidence and Latch
// are optional.
type Deps struct {
	Permissions PermissionProber
	Media       MediaSource
	Display     Display
	Call        CallTransport
	Events      EventSink
	Integrity   MalpracticeMarker
	Evidence    EvidenceStore
	Detector    FaceDetector
	Latch       TerminationLatch
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

type Config struct {
	PermissionPollInterval time.Duration
	DetectionInterval      time.Duration
	WarningTTL             time.Duration
	WarningCapacity        int
	TabSwitchDebounce      time.Duration
	EventTimeout           time.Duration
	CaptureSnapshots       bool
	TerminationRedirect    string

	// Registry housekeeping. Ended sessions stay readable for TerminatedGrace
	// so the browser can fetch the terminal notice. IdleTimeout of zero keeps
	// silent sessions forever.
	TerminatedGrace time.Duration
	IdleTimeout     time.Duration
	ReapInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.PermissionPollInterval <= 0 {
		c.PermissionPollInterval = 3 * time.Second
	}
	if c.DetectionInterval <= 0 {
		c.DetectionInterval = 500 * time.Millisecond
	}
	if c.WarningTTL <= 0 {
		c.WarningTTL = 4 * time.Second
	}
	if c.WarningCapacity <= 0 {
		c.WarningCapacity = 3
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 10 * time.Second
	}
	if c.TerminatedGrace <= 0 {
		c.TerminatedGrace = 2 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	return c
}
