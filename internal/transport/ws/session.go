package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/registry"
)

var errSessionClosed = errors.New("session closed")

// session is a registry.Session backed by one websocket connection. Send only
// enqueues; writeLoop owns all writes to conn.
type session struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn

	out       chan registry.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, identity domain.Identity, conn *websocket.Conn, buffer int) *session {
	return &session{
		id:       id,
		identity: identity,
		conn:     conn,
		out:      make(chan registry.Event, buffer),
		done:     make(chan struct{}),
	}
}

func (s *session) ID() string     { return s.id }
func (s *session) UserID() string { return s.identity.UserID }

func (s *session) Send(ev registry.Event) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.out <- ev:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return registry.ErrSessionBufferFull
	}
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// close frame до разрыва, WriteControl безопасен параллельно с writeLoop
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
