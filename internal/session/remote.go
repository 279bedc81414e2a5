package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
)

// Commands queued for the candidate's browser and drained by its view poll.
const (
	CommandEnterFullscreen = "enter_fullscreen"
	CommandStopCall        = "stop_call"
	CommandReleaseMedia    = "release_media"
)

// Remote is the server-side stand-in for the candidate's browser. It holds
// what the browser last reported and queues the actions the controller asks
// the browser to perform.
type Remote struct {
	mu          sync.Mutex
	perms       Permissions
	callStarted bool
	frame       vision.Frame
	hasFrame    bool
	commands    []string
}

func NewRemote() *Remote {
	return &Remote{
		perms: Permissions{Camera: PermissionPrompt, Microphone: PermissionPrompt},
	}
}

func (r *Remote) Query(ctx context.Context) (Permissions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perms, nil
}

func (r *Remote) SetPermissions(p Permissions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms = p
}

func (r *Remote) Acquire(ctx context.Context) (MediaStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.perms.Granted() {
		return nil, models.ErrPermissionsRequired
	}

	s := &remoteStream{remote: r}
	s.tracks = []MediaTrack{
		newRemoteTrack("video", s),
		newRemoteTrack("audio", s),
	}
	return s, nil
}

func (r *Remote) EnterFullscreen() error {
	r.enqueue(CommandEnterFullscreen)
	return nil
}

func (r *Remote) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callStarted
}

func (r *Remote) Stop() {
	r.mu.Lock()
	r.callStarted = false
	r.mu.Unlock()

	r.enqueue(CommandStopCall)
}

// Observe tracks the call lifecycle signals the browser relays.
func (r *Remote) Observe(sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch sig.Kind {
	case SignalCallStarted:
		r.callStarted = true
	case SignalCallEnded:
		r.callStarted = false
	}
}

func (r *Remote) PushFrame(frame vision.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = frame
	r.hasFrame = true
}

func (r *Remote) DrainCommands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmds := r.commands
	r.commands = nil
	return cmds
}

func (r *Remote) enqueue(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

type remoteStream struct {
	remote  *Remote
	tracks  []MediaTrack
	release sync.Once
}

func (s *remoteStream) Tracks() []MediaTrack {
	return s.tracks
}

func (s *remoteStream) CurrentFrame() (vision.Frame, bool) {
	s.remote.mu.Lock()
	defer s.remote.mu.Unlock()
	return s.remote.frame, s.remote.hasFrame
}

func (s *remoteStream) trackStopped() {
	s.release.Do(func() {
		s.remote.enqueue(CommandReleaseMedia)
	})
}

type remoteTrack struct {
	kind   string
	live   atomic.Bool
	stream *remoteStream
}

func newRemoteTrack(kind string, stream *remoteStream) *remoteTrack {
	t := &remoteTrack{kind: kind, stream: stream}
	t.live.Store(true)
	return t
}

func (t *remoteTrack) Kind() string {
	return t.kind
}

func (t *remoteTrack) Live() bool {
	return t.live.Load()
}

func (t *remoteTrack) Stop() {
	if t.live.Swap(false) {
		t.stream.trackStopped()
	}
}
