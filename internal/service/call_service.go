package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/registry"
)

// Outcome is what routing a signal did. It is never an error: call signalling
// to an unreachable peer is silently dropped.
type Outcome struct {
	Delivered int
	Pushed    bool
}

type pairKey struct{ a, b string }

func newPairKey(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{x, y}
}

func (k pairKey) peer(of string) string {
	if k.a == of {
		return k.b
	}
	return k.a
}

type CallService struct {
	presence   Presence
	dispatcher Dispatcher
	logger     *slog.Logger

	mu    sync.Mutex
	pairs map[pairKey]domain.CallState
}

func NewCallService(presence Presence, dispatcher Dispatcher, logger *slog.Logger) *CallService {
	return &CallService{
		presence:   presence,
		dispatcher: dispatcher,
		logger:     logger.With("component", "call_service"),
		pairs:      make(map[pairKey]domain.CallState),
	}
}

func (s *CallService) Route(ctx context.Context, sig domain.CallSignal) Outcome {
	if sig.FromID == "" || sig.ToID == "" {
		s.logger.Debug("dropping signal without endpoints", "type", sig.Type)
		return Outcome{}
	}

	ev, ok := eventFor(sig)
	if !ok {
		s.logger.Debug("unknown signal type", "type", sig.Type, "from", sig.FromID)
		return Outcome{}
	}

	s.advance(sig)

	sessions := s.presence.SessionsFor(sig.ToID)
	if len(sessions) == 0 {
		if sig.Type != domain.SignalIncomingCall {
			s.logger.Debug("peer offline, signal dropped", "type", sig.Type, "from", sig.FromID, "to", sig.ToID)
			return Outcome{}
		}
		if err := s.dispatcher.DispatchIncomingCall(ctx, sig.ToID, sig.FromID, sig.FromName); err != nil {
			s.logger.Info("call push not delivered", "from", sig.FromID, "to", sig.ToID, "err", err)
		}
		return Outcome{Pushed: true}
	}

	n, errs := registry.Deliver(sessions, "", ev)
	for _, err := range errs {
		s.logger.Warn("signal delivery failed", "type", sig.Type, "to", sig.ToID, "err", err)
	}
	return Outcome{Delivered: n}
}

// OnDisconnect ends any call the user was in once their last session is gone.
func (s *CallService) OnDisconnect(userID string, remaining int) {
	if remaining > 0 {
		return
	}

	var peers []string
	s.mu.Lock()
	for k, st := range s.pairs {
		if k.a != userID && k.b != userID {
			continue
		}
		if st.Engaged() {
			peers = append(peers, k.peer(userID))
		}
		delete(s.pairs, k)
	}
	s.mu.Unlock()

	for _, peer := range peers {
		ev := registry.Event{Type: EventCallEnded, Payload: CallEndedPayload{FromID: userID, Reason: EndReasonDisconnected}}
		n, _ := registry.Deliver(s.presence.SessionsFor(peer), "", ev)
		s.logger.Info("call ended by disconnect", "user_id", userID, "peer", peer, "delivered", n)
	}
}

// State is the tracked state of the pair, Idle when unknown.
func (s *CallService) State(x, y string) domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs[newPairKey(x, y)]
}

func (s *CallService) advance(sig domain.CallSignal) {
	k := newPairKey(sig.FromID, sig.ToID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.pairs[k]
	next, ok := domain.NextCallState(cur, sig.Type)
	if !ok {
		s.logger.Debug("out of sequence signal", "type", sig.Type, "state", cur.String(), "from", sig.FromID, "to", sig.ToID)
	}
	if next.Terminal() {
		delete(s.pairs, k)
		return
	}
	s.pairs[k] = next
}

func eventFor(sig domain.CallSignal) (registry.Event, bool) {
	fwd := SignalPayload{FromID: sig.FromID, Payload: sig.Payload}
	switch sig.Type {
	case domain.SignalIncomingCall:
		return registry.Event{Type: EventIncomingCall, Payload: IncomingCallPayload{FromID: sig.FromID, FromName: sig.FromName}}, true
	case domain.SignalAccept:
		return registry.Event{Type: EventCallAccepted, Payload: fwd}, true
	case domain.SignalReject:
		return registry.Event{Type: EventCallRejected, Payload: fwd}, true
	case domain.SignalOffer:
		return registry.Event{Type: EventReceiveOffer, Payload: fwd}, true
	case domain.SignalAnswer:
		return registry.Event{Type: EventReceiveAnswer, Payload: fwd}, true
	case domain.SignalICECandidate:
		return registry.Event{Type: EventReceiveIceCandidate, Payload: fwd}, true
	case domain.SignalEnd:
		return registry.Event{Type: EventCallEnded, Payload: CallEndedPayload{FromID: sig.FromID, Reason: EndReasonHangup}}, true
	}
	return registry.Event{}, false
}
