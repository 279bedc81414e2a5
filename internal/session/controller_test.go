package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var granted = Permissions{Camera: PermissionGranted, Microphone: PermissionGranted}

func testConfig() Config {
	return Config{
		PermissionPollInterval: time.Hour,
		DetectionInterval:      5 * time.Millisecond,
		WarningTTL:             time.Minute,
		WarningCapacity:        3,
		TabSwitchDebounce:      time.Second,
		EventTimeout:           time.Second,
		TerminationRedirect:    "/ended",
	}
}

type harness struct {
	c      *Controller
	remote *Remote
	media  *recordingMedia
	call   *countingCall
	sink   *recordingSink
	marker *countingMarker
}

func newHarness(t *testing.T, cfg Config, opts ...func(*Deps)) *harness {
	t.Helper()

	h := &harness{
		remote: NewRemote(),
		call:   &countingCall{},
		sink:   &recordingSink{},
		marker: &countingMarker{},
	}
	h.remote.SetPermissions(granted)
	h.media = &recordingMedia{src: h.remote}

	deps := Deps{
		Permissions: h.remote,
		Media:       h.media,
		Display:     h.remote,
		Call:        h.call,
		Events:      h.sink,
		Integrity:   h.marker,
		Logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h.c = New("cand-1", "intv-1", deps, cfg)
	h.c.Start(context.Background())
	t.Cleanup(h.c.Close)

	// Let the first permission poll land so it cannot interleave with the test.
	require.Eventually(t, func() bool {
		h.c.mu.Lock()
		defer h.c.mu.Unlock()
		return h.c.permsKnown
	}, time.Second, time.Millisecond)

	return h
}

// live consents and starts the interview call.
func (h *harness) live(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.GiveConsent(context.Background()))
	require.Equal(t, StateMonitoring, h.c.State())
	h.call.started.Store(true)
	require.NoError(t, h.c.HandleSignal(context.Background(), Signal{Kind: SignalFullscreenChange, Value: true, At: time.Now()}))
}

func (h *harness) signal(t *testing.T, kind SignalKind, value bool, at time.Time) {
	t.Helper()
	require.NoError(t, h.c.HandleSignal(context.Background(), Signal{Kind: kind, Value: value, At: at}))
}

func TestDeniedCameraNeverLeavesConsent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.remote.SetPermissions(Permissions{Camera: PermissionDenied, Microphone: PermissionGranted})

	err := h.c.GiveConsent(context.Background())
	require.ErrorIs(t, err, models.ErrPermissionsRequired)
	assert.Equal(t, StateAwaitingConsent, h.c.State())
	assert.Equal(t, promptPermissions, h.c.Status().PermissionPrompt)

	h.call.started.Store(true)
	now := time.Now()
	h.signal(t, SignalWindowBlur, false, now)
	h.signal(t, SignalCopy, false, now)
	h.signal(t, SignalFullscreenChange, false, now)

	assert.Equal(t, StateAwaitingConsent, h.c.State())
	h.c.Close()
	assert.Zero(t, h.sink.total())
	assert.Zero(t, h.marker.calls.Load())
}

func TestConsentAdvancesOnceDevicesGranted(t *testing.T) {
	h := newHarness(t, testConfig())
	h.remote.SetPermissions(Permissions{Camera: PermissionPrompt, Microphone: PermissionPrompt})

	require.ErrorIs(t, h.c.GiveConsent(context.Background()), models.ErrPermissionsRequired)

	h.remote.SetPermissions(granted)
	h.c.CheckPermissions(context.Background())

	assert.Equal(t, StateMonitoring, h.c.State())
	assert.Empty(t, h.c.Status().PermissionPrompt)
	assert.Contains(t, h.remote.DrainCommands(), CommandEnterFullscreen)
}

func TestCallEndedBeforeConsentKeepsSession(t *testing.T) {
	h := newHarness(t, testConfig())

	h.signal(t, SignalCallEnded, false, time.Now())
	assert.Equal(t, StateAwaitingConsent, h.c.State())
	_, ended := h.c.EndedAt()
	assert.False(t, ended)

	require.NoError(t, h.c.GiveConsent(context.Background()))
	assert.Equal(t, StateMonitoring, h.c.State())
	assert.Equal(t, 2, h.media.liveTracks())
}

func TestEndedAtSetOnTermination(t *testing.T) {
	h := newHarness(t, testConfig())
	h.live(t)

	_, ended := h.c.EndedAt()
	require.False(t, ended)

	h.signal(t, SignalCallEnded, false, time.Now())

	endedAt, ended := h.c.EndedAt()
	require.True(t, ended)
	assert.WithinDuration(t, time.Now(), endedAt, time.Second)
}

func TestMediaFailureRollsBackToConsent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.media.err = errors.New("NotReadableError")

	err := h.c.GiveConsent(context.Background())

	require.ErrorIs(t, err, models.ErrPermissionsRequired)
	assert.Equal(t, StateAwaitingConsent, h.c.State())
}

func TestGiveConsentRequiresStart(t *testing.T) {
	remote := NewRemote()
	remote.SetPermissions(granted)
	c := New("c", "i", Deps{Permissions: remote, Media: remote, Display: remote, Call: remote, Logger: zerolog.Nop()}, testConfig())

	err := c.GiveConsent(context.Background())

	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestFullscreenExitTerminatesSession(t *testing.T) {
	h := newHarness(t, testConfig())
	h.live(t)

	h.signal(t, SignalFullscreenChange, false, time.Now())

	assert.Equal(t, StateTerminated, h.c.State())
	assert.EqualValues(t, 1, h.marker.calls.Load())
	assert.EqualValues(t, 1, h.call.stops.Load())

	view := h.c.Status()
	assert.Equal(t, noticeTerminated, view.TerminalNotice)
	assert.Equal(t, "/ended", view.Redirect)
	assert.False(t, view.FullscreenOverlay)

	err := h.c.HandleSignal(context.Background(), Signal{Kind: SignalFullscreenChange, Value: true, At: time.Now()})
	assert.ErrorIs(t, err, models.ErrSessionTerminated)
	assert.ErrorIs(t, h.c.GiveConsent(context.Background()), models.ErrSessionTerminated)

	h.c.Close()
	assert.EqualValues(t, 1, h.marker.calls.Load())
	assert.Equal(t, 1, h.sink.count(models.EventTypeFullscreenExit))
}

func TestConcurrentFullscreenExitsTerminateOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	h.live(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.c.HandleSignal(context.Background(), Signal{Kind: SignalFullscreenChange, Value: false, At: time.Now()})
		}()
	}
	wg.Wait()
	h.c.Close()

	assert.EqualValues(t, 1, h.marker.calls.Load())
	assert.EqualValues(t, 1, h.call.stops.Load())
	assert.Equal(t, 1, h.sink.count(models.EventTypeFullscreenExit))
}

func TestFullscreenExitBeforeCallOnlyShowsOverlay(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.c.GiveConsent(context.Background()))

	now := time.Now()
	h.signal(t, SignalFullscreenChange, false, now)
	h.signal(t, SignalVisibilityChange, false, now)
	h.signal(t, SignalCopy, false, now)

	view := h.c.Status()
	assert.Equal(t, StateMonitoring.String(), view.State)
	assert.True(t, view.FullscreenOverlay)
	assert.Zero(t, h.marker.calls.Load())

	h.c.Close()
	assert.Zero(t, h.sink.total())
}

func TestTerminationLatchHeldElsewhere(t *testing.T) {
	h := newHarness(t, testConfig(), func(d *Deps) {
		d.Latch = &fakeLatch{claimed: false}
	})
	h.live(t)

	h.signal(t, SignalFullscreenChange, false, time.Now())
	h.c.Close()

	assert.Equal(t, StateTerminated, h.c.State())
	assert.Zero(t, h.marker.calls.Load())
	assert.EqualValues(t, 1, h.call.stops.Load())
	assert.Zero(t, h.sink.count(models.EventTypeFullscreenExit))
}

func TestTerminationLatchErrorFallsBackToLocal(t *testing.T) {
	h := newHarness(t, testConfig(), func(d *Deps) {
		d.Latch = &fakeLatch{err: errors.New("redis: connection refused")}
	})
	h.live(t)

	h.signal(t, SignalFullscreenChange, false, time.Now())

	assert.EqualValues(t, 1, h.marker.calls.Load())
}

func TestMediaReleasedOnEveryExit(t *testing.T) {
	exits := map[string]func(t *testing.T, h *harness){
		"call ended": func(t *testing.T, h *harness) {
			h.signal(t, SignalCallEnded, false, time.Now())
		},
		"closed": func(t *testing.T, h *harness) {
			h.c.Close()
		},
		"hard violation": func(t *testing.T, h *harness) {
			h.signal(t, SignalFullscreenChange, false, time.Now())
		},
	}

	for name, exit := range exits {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.live(t)
			require.Equal(t, 2, h.media.liveTracks())

			exit(t, h)

			assert.Equal(t, StateTerminated, h.c.State())
			assert.Zero(t, h.media.liveTracks())
			assert.Contains(t, h.remote.DrainCommands(), CommandReleaseMedia)
		})
	}
}

func TestTabSwitchSignalsAreDebounced(t *testing.T) {
	h := newHarness(t, testConfig())
	h.live(t)

	t0 := time.Now()
	h.signal(t, SignalVisibilityChange, false, t0)
	h.signal(t, SignalWindowBlur, false, t0.Add(100*time.Millisecond))
	h.signal(t, SignalVisibilityChange, true, t0.Add(500*time.Millisecond))
	h.signal(t, SignalWindowBlur, false, t0.Add(2*time.Second))
	h.c.Close()

	assert.Equal(t, 2, h.sink.count(models.EventTypeTabSwitch))
}

func TestClipboardAndContextMenu(t *testing.T) {
	h := newHarness(t, testConfig())
	h.live(t)

	now := time.Now()
	h.signal(t, SignalCopy, false, now)
	h.signal(t, SignalPaste, false, now)
	h.signal(t, SignalContextMenu, false, now)

	warnings := h.c.Status().Warnings
	require.Len(t, warnings, 3)
	assert.Equal(t, warnContextMenu, warnings[2].Message)

	h.c.Close()
	assert.Equal(t, 2, h.sink.count(models.EventTypeCopyPaste))
	assert.Equal(t, 2, h.sink.total())
}

func TestEventLogFailureKeepsMonitoring(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sink.fail = true
	h.live(t)

	h.signal(t, SignalCopy, false, time.Now())
	h.signal(t, SignalPaste, false, time.Now())

	assert.Eventually(t, func() bool { return h.sink.total() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateMonitoring, h.c.State())
	assert.Nil(t, h.c.Status().Risk)
}

func TestDisplayedRiskNeverDecreases(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sink.risks = []models.RiskAssessment{
		{Score: 30, Level: models.RiskLevelMedium},
		{Score: 15, Level: models.RiskLevelLow},
	}
	h.live(t)

	h.signal(t, SignalCopy, false, time.Now())
	assert.Eventually(t, func() bool {
		r := h.c.Status().Risk
		return r != nil && r.Score == 30
	}, time.Second, 5*time.Millisecond)

	h.signal(t, SignalPaste, false, time.Now())
	h.c.Close()

	assert.Equal(t, 2, h.sink.total())
	assert.Equal(t, 30, h.c.Status().Risk.Score)
}

func TestPermissionRevocationLogsOncePerChange(t *testing.T) {
	h := newHarness(t, testConfig())
	h.live(t)
	ctx := context.Background()

	h.remote.SetPermissions(Permissions{Camera: PermissionDenied, Microphone: PermissionGranted})
	h.c.CheckPermissions(ctx)
	h.c.CheckPermissions(ctx)

	h.remote.SetPermissions(Permissions{Camera: PermissionDenied, Microphone: PermissionDenied})
	h.c.CheckPermissions(ctx)

	assert.Equal(t, promptPermissions, h.c.Status().PermissionPrompt)
	assert.Equal(t, StateMonitoring, h.c.State())

	h.c.Close()
	assert.Equal(t, 1, h.sink.count(models.EventTypeCamOff))
	assert.Equal(t, 1, h.sink.count(models.EventTypeMicMuted))
}

func TestFaceChecksLogViolations(t *testing.T) {
	det := &fakeDetector{}
	evidence := &fakeEvidence{}
	cfg := testConfig()
	cfg.CaptureSnapshots = true

	h := newHarness(t, cfg, func(d *Deps) {
		d.Detector = det
		d.Evidence = evidence
	})
	h.remote.PushFrame(vision.Frame{PresentationTime: time.Second, Width: 640, Height: 480, JPEG: []byte{0xff, 0xd8}})
	h.live(t)

	assert.Eventually(t, func() bool {
		return h.sink.count(models.EventTypeFaceMissing) > 0
	}, time.Second, 5*time.Millisecond)

	det.faces.Store(2)
	assert.Eventually(t, func() bool {
		return h.sink.count(models.EventTypeMultipleFaces) > 0
	}, time.Second, 5*time.Millisecond)

	h.c.Close()

	details := h.sink.detailsFor(models.EventTypeMultipleFaces)
	require.NotEmpty(t, details)
	require.NotNil(t, details[0].FaceCount)
	assert.Equal(t, 2, *details[0].FaceCount)
	assert.Equal(t, "snapshots/cand-1/intv-1/evt.jpg", details[0].SnapshotKey)
	assert.Positive(t, evidence.puts.Load())
	assert.True(t, h.c.Status().VisionEnabled)
}

func TestSingleFaceLogsNothing(t *testing.T) {
	det := &fakeDetector{}
	det.faces.Store(1)
	entered := make(chan struct{}, 1)
	det.entered = entered

	h := newHarness(t, testConfig(), func(d *Deps) { d.Detector = det })
	h.remote.PushFrame(vision.Frame{PresentationTime: time.Second, Width: 640, Height: 480})
	h.live(t)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("detector was never called")
	}
	h.c.Close()

	assert.Zero(t, h.sink.total())
}

func TestDetectorInitFailureDisablesFaceChecksOnly(t *testing.T) {
	det := &fakeDetector{initErr: models.ErrDetectorUnavailable}
	h := newHarness(t, testConfig(), func(d *Deps) { d.Detector = det })
	h.remote.PushFrame(vision.Frame{PresentationTime: time.Second, Width: 640, Height: 480})
	h.live(t)

	assert.Eventually(t, func() bool { return !h.c.Status().VisionEnabled }, time.Second, 5*time.Millisecond)

	h.signal(t, SignalCopy, false, time.Now())
	h.c.Close()

	assert.Equal(t, 1, h.sink.count(models.EventTypeCopyPaste))
	assert.Zero(t, h.sink.count(models.EventTypeFaceMissing))
}

func TestLateDetectionAfterTeardownIsDropped(t *testing.T) {
	det := &fakeDetector{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newHarness(t, testConfig(), func(d *Deps) { d.Detector = det })
	h.remote.PushFrame(vision.Frame{PresentationTime: time.Second, Width: 640, Height: 480})
	h.live(t)

	select {
	case <-det.entered:
	case <-time.After(time.Second):
		t.Fatal("detector was never called")
	}

	h.signal(t, SignalCallEnded, false, time.Now())
	close(det.release)
	h.c.Close()

	assert.Zero(t, h.sink.count(models.EventTypeFaceMissing))
}
