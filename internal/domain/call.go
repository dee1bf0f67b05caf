package domain

import "encoding/json"

type SignalType string

const (
	SignalIncomingCall SignalType = "incoming-call"
	SignalAccept       SignalType = "accept"
	SignalReject       SignalType = "reject"
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
	SignalEnd          SignalType = "end"
)

// CallSignal exists only while it is being routed.
type CallSignal struct {
	Type     SignalType
	FromID   string
	FromName string
	ToID     string
	Payload  json.RawMessage
}

type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallConnecting
	CallActive
	CallRejected
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallRinging:
		return "ringing"
	case CallConnecting:
		return "connecting"
	case CallActive:
		return "active"
	case CallRejected:
		return "rejected"
	case CallEnded:
		return "ended"
	}
	return "unknown"
}

// Engaged reports whether both peers expect further signalling.
func (s CallState) Engaged() bool {
	return s == CallConnecting || s == CallActive
}

// Terminal states collapse back to Idle for the next call.
func (s CallState) Terminal() bool {
	return s == CallRejected || s == CallEnded || s == CallIdle
}

// NextCallState applies a signal to the pair state. ok is false when the signal
// is out of sequence; the returned state is then the best guess at where the
// peers are, since routing never depends on it.
func NextCallState(cur CallState, sig SignalType) (next CallState, ok bool) {
	switch sig {
	case SignalIncomingCall:
		return CallRinging, cur.Terminal()
	case SignalAccept:
		return CallConnecting, cur == CallRinging
	case SignalReject:
		return CallRejected, cur == CallRinging
	case SignalOffer, SignalAnswer:
		return CallActive, cur == CallConnecting || cur == CallActive
	case SignalICECandidate:
		if cur == CallConnecting || cur == CallActive {
			return CallActive, true
		}
		return cur, false
	case SignalEnd:
		return CallEnded, !cur.Terminal()
	}
	return cur, false
}
