package session

type State int

const (
	StateAwaitingConsent State = iota
	StatePermissionCheck
	StateMonitoring
	StateViolating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingConsent:
		return "awaiting_consent"
	case StatePermissionCheck:
		return "permission_check"
	case StateMonitoring:
		return "monitoring"
	case StateViolating:
		return "violating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// transitions lists every legal edge. Terminated has no outgoing edges.
var transitions = map[State][]State{
	StateAwaitingConsent: {StatePermissionCheck, StateTerminated},
	StatePermissionCheck: {StateMonitoring, StateAwaitingConsent, StateTerminated},
	StateMonitoring:      {StateViolating, StateTerminated},
	StateViolating:       {StateTerminated},
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
