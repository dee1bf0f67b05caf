package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/registry"
	"github.com/cwrk-planet/comms-service/internal/security"
	"github.com/cwrk-planet/comms-service/internal/service"
)

type Authenticator interface {
	ParseAndValidate(token string) (domain.Identity, error)
}

type ChatSvc interface {
	Send(ctx context.Context, sender domain.Identity, originSessionID string, req service.SendRequest) (service.Delivery, error)
}

type CallSvc interface {
	Route(ctx context.Context, sig domain.CallSignal) service.Outcome
	OnDisconnect(userID string, remaining int)
}

type Config struct {
	PingEvery      time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	ReadLimit      int64
	AllowedOrigins []string
}

type Server struct {
	upgrader websocket.Upgrader
	auth     Authenticator
	registry *registry.Registry
	chatSvc  ChatSvc
	callSvc  CallSvc
	cfg      Config
	logger   *slog.Logger
}

func NewServer(auth Authenticator, reg *registry.Registry, chat ChatSvc, calls CallSvc, cfg Config, logger *slog.Logger) *Server {
	if cfg.PingEvery <= 0 {
		cfg.PingEvery = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	return &Server{
		auth:     auth,
		registry: reg,
		chatSvc:  chat,
		callSvc:  calls,
		cfg:      cfg,
		logger:   logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// WS endpoint: GET /ws?access_token=... (или Authorization: Bearer ...)
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		token = security.BearerToken(r.Header.Get("Authorization"))
	}
	identity, err := s.auth.ParseAndValidate(token)
	if err != nil {
		s.logger.Debug("ws rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warn("ws upgrade failed", "user_id", identity.UserID, "err", err)
		return
	}

	ctx := r.Context()
	sess := newSession(uuid.NewString(), identity, conn, s.cfg.SendBuffer)
	log := s.logger.With("user_id", identity.UserID, "session_id", sess.ID())

	s.registry.Register(identity.UserID, sess.ID(), sess)
	log.Info("ws connected", "role", identity.Role)

	go s.writeLoop(sess, log)
	s.readLoop(ctx, sess, log)

	remaining, removed := s.registry.UnregisterSession(sess)
	_ = sess.Close()
	if removed {
		s.callSvc.OnDisconnect(identity.UserID, remaining)
	}
	log.Info("ws disconnected", "remaining_sessions", remaining)
}

func (s *Server) readLoop(ctx context.Context, sess *session, log *slog.Logger) {
	conn := sess.conn
	conn.SetReadLimit(s.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read failed", "err", err)
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.reply(sess, log, TypeError, ErrorPayload{Code: "bad_request", Message: "malformed frame"})
			continue
		}
		s.dispatch(ctx, sess, log, in)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session, log *slog.Logger, in Inbound) {
	switch in.Type {
	case TypeSendMessage:
		var p SendMessagePayload
		if err := decode(in.Payload, &p); err != nil {
			s.reply(sess, log, TypeError, ErrorPayload{Code: "bad_request", Message: err.Error()})
			return
		}
		s.sendMessage(ctx, sess, log, p)

	case TypeStartCall:
		var p StartCallPayload
		if err := decode(in.Payload, &p); err != nil {
			s.reply(sess, log, TypeError, ErrorPayload{Code: "bad_request", Message: err.Error()})
			return
		}
		name := strings.TrimSpace(p.FromName)
		if name == "" {
			name = sess.identity.UserID
		}
		s.callSvc.Route(ctx, domain.CallSignal{
			Type:     domain.SignalIncomingCall,
			FromID:   sess.identity.UserID,
			FromName: name,
			ToID:     p.ToID,
		})

	case TypeSendOffer, TypeSendAnswer, TypeSendIceCandidate, TypeAcceptCall, TypeRejectCall, TypeEndCall:
		var p SignalPayload
		if err := decode(in.Payload, &p); err != nil {
			s.reply(sess, log, TypeError, ErrorPayload{Code: "bad_request", Message: err.Error()})
			return
		}
		s.callSvc.Route(ctx, domain.CallSignal{
			Type:    signalTypes[in.Type],
			FromID:  sess.identity.UserID,
			ToID:    p.ToID,
			Payload: p.Payload,
		})

	default:
		s.reply(sess, log, TypeError, ErrorPayload{Code: "unknown_type", Message: "unknown invocation " + in.Type})
	}
}

var signalTypes = map[string]domain.SignalType{
	TypeSendOffer:        domain.SignalOffer,
	TypeSendAnswer:       domain.SignalAnswer,
	TypeSendIceCandidate: domain.SignalICECandidate,
	TypeAcceptCall:       domain.SignalAccept,
	TypeRejectCall:       domain.SignalReject,
	TypeEndCall:          domain.SignalEnd,
}

func (s *Server) sendMessage(ctx context.Context, sess *session, log *slog.Logger, p SendMessagePayload) {
	req := service.SendRequest{ReceiverID: strings.TrimSpace(p.ReceiverID), Body: p.Message}
	if p.FileURL != "" || p.FileName != "" || p.FileType != "" {
		req.Attachment = &domain.Attachment{URL: p.FileURL, Name: p.FileName, MimeType: p.FileType}
	}

	d, err := s.chatSvc.Send(ctx, sess.identity, sess.ID(), req)
	if err != nil {
		s.reply(sess, log, TypeError, ErrorPayload{Code: errorCode(err), Message: errorMessage(err), ClientID: p.ClientID})
		return
	}
	s.reply(sess, log, TypeMessageAck, MessageAckPayload{
		ClientID: p.ClientID,
		ID:       d.Message.ID,
		SentAt:   d.Message.SentAt.UnixMilli(),
		Live:     d.Delivered > 0,
	})
}

func (s *Server) reply(sess *session, log *slog.Logger, typ string, payload any) {
	if err := sess.Send(registry.Event{Type: typ, Payload: payload}); err != nil {
		log.Debug("ws reply dropped", "type", typ, "err", err)
	}
}

func (s *Server) writeLoop(sess *session, log *slog.Logger) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer ticker.Stop()
	defer func() { _ = sess.Close() }()

	for {
		select {
		case ev := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := sess.conn.WriteJSON(ev); err != nil {
				log.Debug("ws write failed", "type", ev.Type, "err", err)
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

// --- helpers ---

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, dst)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	}
	return "internal"
}

func errorMessage(err error) string {
	if errorCode(err) == "internal" || errors.Is(err, domain.ErrPersistence) {
		return "message was not saved"
	}
	return err.Error()
}

// originChecker allows any origin when the list is empty or contains "*".
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// нативные мобильные клиенты Origin не шлют
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
