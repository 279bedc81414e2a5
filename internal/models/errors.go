package models

import "errors"

var (
	ErrCandidateNotFound   = errors.New("candidate not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionTerminated   = errors.New("session terminated")
	ErrSessionLimit        = errors.New("too many active sessions")
	ErrIllegalTransition   = errors.New("illegal session state transition")
	ErrDetectorUnavailable = errors.New("face detector unavailable")
	ErrInvalidEvent        = errors.New("invalid proctoring event")
	ErrInvalidSignal       = errors.New("invalid environment signal")
	ErrPermissionsRequired = errors.New("camera and microphone permission required")
)
