package fetchlib

// State is a request's position in its lifecycle. A request moves
// strictly forward through the non-terminal states and ends in exactly
// one of Finished, Failed or Cancelled.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSendingBody
	StateAwaitingAuthentication
	StateReceivingHeaders
	StateReceivingBody
	StateFinished
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:                   "idle",
	StateConnecting:             "connecting",
	StateSendingBody:            "sending-body",
	StateAwaitingAuthentication: "awaiting-authentication",
	StateReceivingHeaders:       "receiving-headers",
	StateReceivingBody:          "receiving-body",
	StateFinished:               "finished",
	StateFailed:                 "failed",
	StateCancelled:              "cancelled",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateFailed, StateCancelled:
		return true
	}
	return false
}
