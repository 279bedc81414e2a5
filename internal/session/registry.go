package session

import (
	"context"
	"sync"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/metrics"
	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
	"github.com/rs/zerolog"
)

// DetectorFactory returns a fresh detector handle for one session.
type DetectorFactory func() FaceDetector

type RegistryDeps struct {
	Events      EventSink
	Integrity   MalpracticeMarker
	Evidence    EvidenceStore
	Latch       TerminationLatch
	NewDetector DetectorFactory
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

type sessionKey struct {
	candidateID string
	interviewID string
}

type entry struct {
	controller *Controller
	remote     *Remote
	detector   FaceDetector
	lastSeen   time.Time
}

// Registry owns the live controllers, one per (candidate, interview) pair.
type Registry struct {
	deps        RegistryDeps
	cfg         Config
	maxSessions int
	logger      zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*entry

	stop     chan struct{}
	stopOnce sync.Once
	reaper   sync.WaitGroup
}

func NewRegistry(deps RegistryDeps, cfg Config, maxSessions int) *Registry {
	return &Registry{
		deps:        deps,
		cfg:         cfg.withDefaults(),
		maxSessions: maxSessions,
		logger:      deps.Logger,
		now:         time.Now,
		sessions:    make(map[sessionKey]*entry),
		stop:        make(chan struct{}),
	}
}

// StartReaper sweeps expired sessions every ReapInterval until CloseAll.
func (r *Registry) StartReaper() {
	r.reaper.Add(1)
	go func() {
		defer r.reaper.Done()

		ticker := time.NewTicker(r.cfg.ReapInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.Reap()
			}
		}
	}()
}

// Reap closes sessions that ended more than TerminatedGrace ago, and live
// sessions nobody has touched for IdleTimeout. It returns how many it closed.
func (r *Registry) Reap() int {
	r.mu.Lock()
	expired := r.expiredLocked(r.now())
	r.mu.Unlock()

	r.closeEntries(expired)
	if len(expired) > 0 {
		r.logger.Info().Int("sessions", len(expired)).Msg("Reaped expired proctoring sessions")
	}
	return len(expired)
}

// Open returns the live controller for the session, creating and starting
// one if none exists.
func (r *Registry) Open(candidateID, interviewID string) (*Controller, error) {
	key := sessionKey{candidateID: candidateID, interviewID: interviewID}

	r.mu.Lock()
	now := r.now()
	expired := r.expiredLocked(now)
	controller, err := r.openLocked(key, now)
	r.mu.Unlock()

	r.closeEntries(expired)
	return controller, err
}

func (r *Registry) openLocked(key sessionKey, now time.Time) (*Controller, error) {
	if e, ok := r.sessions[key]; ok {
		e.lastSeen = now
		return e.controller, nil
	}
	if r.maxSessions > 0 && r.liveLocked() >= r.maxSessions {
		return nil, models.ErrSessionLimit
	}
	candidateID, interviewID := key.candidateID, key.interviewID

	remote := NewRemote()
	var detector FaceDetector
	if r.deps.NewDetector != nil {
		detector = r.deps.NewDetector()
	}

	controller := New(candidateID, interviewID, Deps{
		Permissions: remote,
		Media:       remote,
		Display:     remote,
		Call:        remote,
		Events:      r.deps.Events,
		Integrity:   r.deps.Integrity,
		Evidence:    r.deps.Evidence,
		Detector:    detector,
		Latch:       r.deps.Latch,
		Metrics:     r.deps.Metrics,
		Logger:      r.deps.Logger,
	}, r.cfg)
	controller.Start(context.Background())

	r.sessions[key] = &entry{controller: controller, remote: remote, detector: detector, lastSeen: now}
	r.deps.Metrics.SessionOpened()

	r.logger.Info().
		Str("candidate_id", candidateID).
		Str("interview_id", interviewID).
		Msg("Proctoring session opened")

	return controller, nil
}

func (r *Registry) Get(candidateID, interviewID string) (*Controller, error) {
	e, err := r.lookup(candidateID, interviewID)
	if err != nil {
		return nil, err
	}
	return e.controller, nil
}

func (r *Registry) Dispatch(ctx context.Context, candidateID, interviewID string, sig Signal) error {
	e, err := r.lookup(candidateID, interviewID)
	if err != nil {
		return err
	}

	e.remote.Observe(sig)
	return e.controller.HandleSignal(ctx, sig)
}

func (r *Registry) GiveConsent(ctx context.Context, candidateID, interviewID string) error {
	e, err := r.lookup(candidateID, interviewID)
	if err != nil {
		return err
	}
	return e.controller.GiveConsent(ctx)
}

func (r *Registry) ReportPermissions(ctx context.Context, candidateID, interviewID string, perms Permissions) error {
	e, err := r.lookup(candidateID, interviewID)
	if err != nil {
		return err
	}

	e.remote.SetPermissions(perms)
	e.controller.CheckPermissions(ctx)
	return nil
}

func (r *Registry) PushFrame(candidateID, interviewID string, frame vision.Frame) error {
	e, err := r.lookup(candidateID, interviewID)
	if err != nil {
		return err
	}

	e.remote.PushFrame(frame)
	return nil
}

// View is the session state for the browser plus any commands queued since
// the previous poll.
func (r *Registry) View(candidateID, interviewID string) (models.SessionView, error) {
	e, err := r.lookup(candidateID, interviewID)
	if err != nil {
		return models.SessionView{}, err
	}

	view := e.controller.Status()
	view.Commands = e.remote.DrainCommands()
	return view, nil
}

func (r *Registry) Close(candidateID, interviewID string) error {
	key := sessionKey{candidateID: candidateID, interviewID: interviewID}

	r.mu.Lock()
	e, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if !ok {
		return models.ErrSessionNotFound
	}

	r.closeEntry(e)

	r.logger.Info().
		Str("candidate_id", candidateID).
		Str("interview_id", interviewID).
		Msg("Proctoring session closed")

	return nil
}

func (r *Registry) CloseAll() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.reaper.Wait()

	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for key, e := range r.sessions {
		entries = append(entries, e)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	r.closeEntries(entries)

	if len(entries) > 0 {
		r.logger.Info().Int("sessions", len(entries)).Msg("Closed all proctoring sessions")
	}
}

// Count includes ended sessions still inside their grace period.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Live counts sessions that have not ended. Only these count toward the cap.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked()
}

func (r *Registry) liveLocked() int {
	live := 0
	for _, e := range r.sessions {
		if _, ended := e.controller.EndedAt(); !ended {
			live++
		}
	}
	return live
}

// expiredLocked unlinks expired entries. The caller closes them after
// releasing mu, since Close waits on the controller's goroutines.
func (r *Registry) expiredLocked(now time.Time) []*entry {
	var expired []*entry
	for key, e := range r.sessions {
		endedAt, ended := e.controller.EndedAt()
		switch {
		case ended && now.Sub(endedAt) >= r.cfg.TerminatedGrace:
		case !ended && r.cfg.IdleTimeout > 0 && now.Sub(e.lastSeen) >= r.cfg.IdleTimeout:
			r.logger.Info().
				Str("candidate_id", key.candidateID).
				Str("interview_id", key.interviewID).
				Msg("Closing idle proctoring session")
		default:
			continue
		}
		delete(r.sessions, key)
		expired = append(expired, e)
	}
	return expired
}

func (r *Registry) closeEntries(entries []*entry) {
	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			r.closeEntry(e)
		}(e)
	}
	wg.Wait()
}

func (r *Registry) closeEntry(e *entry) {
	e.controller.Close()
	if e.detector != nil {
		e.detector.Dispose()
	}
	r.deps.Metrics.SessionClosed()
}

func (r *Registry) lookup(candidateID, interviewID string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionKey{candidateID: candidateID, interviewID: interviewID}]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e, nil
}
