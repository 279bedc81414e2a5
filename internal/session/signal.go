package session

import (
	"fmt"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
)

type SignalKind string

const (
	SignalFullscreenChange SignalKind = "fullscreen_change"
	SignalVisibilityChange SignalKind = "visibility_change"
	SignalWindowBlur       SignalKind = "window_blur"
	SignalCopy             SignalKind = "copy"
	SignalPaste            SignalKind = "paste"
	SignalContextMenu      SignalKind = "context_menu"
	SignalCallStarted      SignalKind = "call_started"
	SignalCallEnded        SignalKind = "call_ended"
)

// Signal is one observation of the candidate's environment. Value carries the
// new state for the two toggles: fullscreen entered, page visible.
type Signal struct {
	Kind  SignalKind
	Value bool
	At    time.Time
}

func ParseSignal(kind string, value *bool, at time.Time) (Signal, error) {
	if at.IsZero() {
		at = time.Now()
	}

	sig := Signal{Kind: SignalKind(kind), At: at}

	switch sig.Kind {
	case SignalFullscreenChange, SignalVisibilityChange:
		if value == nil {
			return Signal{}, fmt.Errorf("%w: %s requires a value", models.ErrInvalidSignal, kind)
		}
		sig.Value = *value
	case SignalWindowBlur, SignalCopy, SignalPaste, SignalContextMenu, SignalCallStarted, SignalCallEnded:
	default:
		return Signal{}, fmt.Errorf("%w: unknown kind %q", models.ErrInvalidSignal, kind)
	}

	return sig, nil
}
