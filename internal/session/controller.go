package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/repository"
	"github.com/rs/zerolog"
)

const (
	promptPermissions  = "Enable camera and microphone access to continue."
	promptFullscreen   = "Return to fullscreen to continue the interview."
	noticeTerminated   = "Your interview has been ended due to a proctoring policy violation."
	warnTabSwitch      = "Leaving the interview tab is not allowed. This has been recorded."
	warnCopyPaste      = "Copy and paste are not allowed during the interview."
	warnContextMenu    = "Right-click is disabled during the interview."
	warnFaceMissing    = "No face detected. Stay in front of the camera."
	warnMultipleFaces  = "Multiple faces detected in the camera frame."
	warnCameraOff      = "Camera access was turned off."
	warnMicrophoneOff  = "Microphone access was turned off."
	reasonFullscreen   = "Exited fullscreen during the interview"
	detailsSourceLocal = "session_controller"
)

// Controller runs the proctoring state machine for one candidate session.
// Every handler, timer tick and detection result is applied under mu, so
// they observe each other in a single serial order.
type Controller struct {
	candidateID string
	interviewID string
	deps        Deps
	cfg         Config
	logger      zerolog.Logger
	now         func() time.Time

	endedAt atomic.Int64

	mu       sync.Mutex
	state    State
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	inflight sync.WaitGroup

	consentGiven   bool
	perms          Permissions
	permsKnown     bool
	stream         MediaStream
	fullscreen     bool
	visionEnabled  bool
	terminated     bool
	lastTabSwitch  time.Time
	prompt         string
	terminalNotice string
	redirect       string
	risk           *models.RiskAssessment
	warnings       *warningBuffer
}

func New(candidateID, interviewID string, deps Deps, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		candidateID: candidateID,
		interviewID: interviewID,
		deps:        deps,
		cfg:         cfg,
		logger: deps.Logger.With().
			Str("candidate_id", candidateID).
			Str("interview_id", interviewID).
			Logger(),
		now:           time.Now,
		state:         StateAwaitingConsent,
		visionEnabled: deps.Detector != nil,
		warnings:      newWarningBuffer(cfg.WarningCapacity, cfg.WarningTTL),
	}
}

// Start begins permission polling. It keeps running in every state until
// the session is torn down.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.state == StateTerminated {
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.loops.Add(1)
	go c.pollPermissions(c.ctx)
}

// GiveConsent records the candidate's acceptance of the proctoring
// disclosure and, if both devices are granted, starts monitoring.
func (c *Controller) GiveConsent(ctx context.Context) error {
	perms, err := c.deps.Permissions.Query(ctx)
	if err != nil {
		return fmt.Errorf("failed to query permissions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateMonitoring:
		return nil
	case StateViolating, StateTerminated:
		return models.ErrSessionTerminated
	}
	if !c.started {
		return fmt.Errorf("%w: controller not started", models.ErrIllegalTransition)
	}

	c.consentGiven = true
	c.applyPermissionsLocked(perms)

	if !perms.Granted() {
		c.logger.Info().
			Str("camera", string(perms.Camera)).
			Str("microphone", string(perms.Microphone)).
			Msg("Consent given without device permissions")
		return models.ErrPermissionsRequired
	}

	return c.beginMonitoringLocked(ctx)
}

// CheckPermissions probes device permissions immediately instead of waiting
// for the next poll.
func (c *Controller) CheckPermissions(ctx context.Context) {
	perms, err := c.deps.Permissions.Query(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Permission query failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTerminated {
		return
	}
	c.applyPermissionsLocked(perms)

	if c.state == StateAwaitingConsent && c.consentGiven && perms.Granted() && c.started {
		if err := c.beginMonitoringLocked(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to start monitoring after permissions were granted")
		}
	}
}

func (c *Controller) HandleSignal(ctx context.Context, sig Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTerminated || c.state == StateViolating {
		return models.ErrSessionTerminated
	}

	switch sig.Kind {
	case SignalFullscreenChange:
		c.fullscreen = sig.Value
		if sig.Value || c.state != StateMonitoring {
			return nil
		}
		if c.deps.Call.IsStarted() {
			c.terminateLocked(ctx, reasonFullscreen)
			return nil
		}
		c.warnings.add(promptFullscreen, c.now())

	case SignalVisibilityChange:
		if !sig.Value {
			c.tabSwitchLocked(sig.At, "Interview tab was hidden")
		}

	case SignalWindowBlur:
		c.tabSwitchLocked(sig.At, "Interview window lost focus")

	case SignalCopy, SignalPaste:
		if c.activeLocked() {
			c.reportLocked(models.EventTypeCopyPaste, warnCopyPaste, fmt.Sprintf("Clipboard %s attempted", sig.Kind), nil, nil)
		}

	case SignalContextMenu:
		if c.activeLocked() {
			c.warnings.add(warnContextMenu, c.now())
		}

	case SignalCallStarted:
		c.logger.Info().Msg("Interview call started")

	case SignalCallEnded:
		// Before monitoring the call flag only gates violations; a hang-up or
		// transport reconnect must not cost the candidate their session.
		if c.state != StateMonitoring {
			c.logger.Debug().Str("state", c.state.String()).Msg("Interview call ended before monitoring, ignoring")
			return nil
		}
		c.endLocked("interview call ended")

	default:
		return fmt.Errorf("%w: unknown kind %q", models.ErrInvalidSignal, sig.Kind)
	}

	return nil
}

// Close ends the session if it is still running and waits for its loops and
// pending event writes to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.endLocked("session closed")
	c.mu.Unlock()

	c.loops.Wait()
	c.inflight.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() models.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := models.SessionView{
		CandidateID:        c.candidateID,
		InterviewID:        c.interviewID,
		State:              c.state.String(),
		ConsentGiven:       c.consentGiven,
		PermissionsGranted: c.perms.Granted(),
		VisionEnabled:      c.visionEnabled,
		FullscreenOverlay:  c.state == StateMonitoring && !c.fullscreen,
		PermissionPrompt:   c.prompt,
		TerminalNotice:     c.terminalNotice,
		Redirect:           c.redirect,
		Warnings:           c.warnings.active(c.now()),
	}
	if c.risk != nil {
		risk := *c.risk
		view.Risk = &risk
	}

	return view
}

func (c *Controller) pollPermissions(ctx context.Context) {
	defer c.loops.Done()

	ticker := time.NewTicker(c.cfg.PermissionPollInterval)
	defer ticker.Stop()

	for {
		c.CheckPermissions(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) applyPermissionsLocked(perms Permissions) {
	prev, known := c.perms, c.permsKnown
	c.perms, c.permsKnown = perms, true

	if perms.Granted() {
		c.prompt = ""
	} else {
		c.prompt = promptPermissions
	}

	if !known || !c.activeLocked() {
		return
	}
	if prev.Camera == PermissionGranted && perms.Camera != PermissionGranted {
		c.reportLocked(models.EventTypeCamOff, warnCameraOff, "Camera permission revoked", nil, nil)
	}
	if prev.Microphone == PermissionGranted && perms.Microphone != PermissionGranted {
		c.reportLocked(models.EventTypeMicMuted, warnMicrophoneOff, "Microphone permission revoked", nil, nil)
	}
}

func (c *Controller) beginMonitoringLocked(ctx context.Context) error {
	if err := c.transitionLocked(StatePermissionCheck); err != nil {
		return err
	}

	stream, err := c.deps.Media.Acquire(ctx)
	if err != nil {
		c.prompt = promptPermissions
		if terr := c.transitionLocked(StateAwaitingConsent); terr != nil {
			c.logger.Error().Err(terr).Msg("Failed to roll back permission check")
		}
		return fmt.Errorf("%w: %v", models.ErrPermissionsRequired, err)
	}
	c.stream = stream

	if err := c.deps.Display.EnterFullscreen(); err != nil {
		c.logger.Warn().Err(err).Msg("Fullscreen request failed")
	}

	if err := c.transitionLocked(StateMonitoring); err != nil {
		return err
	}

	if c.deps.Detector != nil {
		c.loops.Add(1)
		go c.detectFaces(c.ctx)
	}

	c.logger.Info().Bool("vision", c.deps.Detector != nil).Msg("Proctoring monitoring started")
	return nil
}

// activeLocked reports whether violations count right now: the session is
// monitoring and the interview call is live.
func (c *Controller) activeLocked() bool {
	return c.state == StateMonitoring && c.deps.Call.IsStarted()
}

func (c *Controller) tabSwitchLocked(at time.Time, detail string) {
	if !c.activeLocked() {
		return
	}
	// Hidden and blur usually fire together for one switch.
	if !c.lastTabSwitch.IsZero() && at.Sub(c.lastTabSwitch) < c.cfg.TabSwitchDebounce {
		return
	}
	c.lastTabSwitch = at

	c.reportLocked(models.EventTypeTabSwitch, warnTabSwitch, detail, nil, nil)
}

// reportLocked shows a warning and writes the event in the background.
func (c *Controller) reportLocked(eventType models.EventType, warning, message string, faceCount *int, jpeg []byte) {
	c.warnings.add(warning, c.now())

	details := models.EventDetails{
		Message:   message,
		FaceCount: faceCount,
		Source:    detailsSourceLocal,
	}

	var snapshot []byte
	if c.cfg.CaptureSnapshots && c.deps.Evidence != nil && len(jpeg) > 0 {
		snapshot = jpeg
	}

	c.inflight.Add(1)
	go c.logEvent(eventType, details, snapshot)
}

func (c *Controller) logEvent(eventType models.EventType, details models.EventDetails, snapshot []byte) {
	defer c.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("event_type", eventType.String()).
				Msg("Recovered from panic while logging proctoring event")
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.EventTimeout)
	defer cancel()

	if snapshot != nil {
		key, err := c.deps.Evidence.CaptureSnapshot(ctx, c.candidateID, c.interviewID, snapshot)
		if err != nil {
			c.logger.Warn().Err(err).Str("event_type", eventType.String()).Msg("Failed to store evidence snapshot")
		} else {
			details.SnapshotKey = key
		}
	}

	res := c.deps.Events.LogEvent(ctx, c.candidateID, c.interviewID, eventType, details.JSON())
	if !res.Success {
		c.logger.Warn().
			Str("event_type", eventType.String()).
			Str("error", res.Error).
			Msg("Proctoring event dropped")
		return
	}

	if res.Risk == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Writes finish out of order; a stale result must not lower the score shown.
	if c.risk == nil || res.Risk.Score > c.risk.Score {
		risk := *res.Risk
		c.risk = &risk
	}
}

// terminateLocked applies the hard-violation consequences at most once.
func (c *Controller) terminateLocked(ctx context.Context, reason string) {
	if c.terminated {
		return
	}
	c.terminated = true

	owner := true
	if c.deps.Latch != nil {
		claimCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.EventTimeout)
		claimed, err := c.deps.Latch.Claim(claimCtx, repository.TerminationLatchKey(c.candidateID, c.interviewID))
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Termination latch unavailable, using local latch only")
		} else {
			owner = claimed
		}
	}

	if err := c.transitionLocked(StateViolating); err != nil {
		c.logger.Error().Err(err).Msg("Unexpected state on hard violation")
	}

	if owner {
		c.reportLocked(models.EventTypeFullscreenExit, promptFullscreen, reason, nil, nil)
	}

	c.deps.Call.Stop()

	if owner {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.EventTimeout)
		if err := c.deps.Integrity.MarkMalpractice(markCtx, c.candidateID, c.interviewID, reason); err != nil {
			c.logger.Error().Err(err).Msg("Failed to mark malpractice")
		}
		cancel()
		c.deps.Metrics.SessionTerminated()
	} else {
		c.logger.Info().Msg("Session already terminated by another instance")
	}

	c.terminalNotice = noticeTerminated
	c.redirect = c.cfg.TerminationRedirect

	c.teardownLocked()
	if err := c.transitionLocked(StateTerminated); err != nil {
		c.logger.Error().Err(err).Msg("Failed to enter terminated state")
	}

	c.logger.Warn().Str("reason", reason).Msg("Session terminated for hard violation")
}

func (c *Controller) endLocked(reason string) {
	if c.state == StateTerminated {
		return
	}

	c.teardownLocked()
	if err := c.transitionLocked(StateTerminated); err != nil {
		c.logger.Error().Err(err).Msg("Failed to end session")
		return
	}

	c.logger.Info().Str("reason", reason).Msg("Proctoring session ended")
}

// EndedAt reports when the session reached its terminal state. It does not
// take the controller lock.
func (c *Controller) EndedAt() (time.Time, bool) {
	nanos := c.endedAt.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// teardownLocked stops both loops and releases every media track.
func (c *Controller) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.stream != nil {
		for _, track := range c.stream.Tracks() {
			track.Stop()
		}
		c.stream = nil
	}
}

func (c *Controller) transitionLocked(next State) error {
	if !c.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, c.state, next)
	}

	c.logger.Debug().
		Str("from", c.state.String()).
		Str("to", next.String()).
		Msg("Session state changed")
	c.state = next
	if next == StateTerminated {
		c.endedAt.Store(c.now().UnixNano())
	}

	return nil
}
