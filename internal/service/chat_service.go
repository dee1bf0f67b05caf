package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/pagination"
	"github.com/cwrk-planet/comms-service/internal/registry"
)

const DefaultMaxBodyLength = 4000

type SendRequest struct {
	ReceiverID string
	Body       *string
	Attachment *domain.Attachment
}

// Delivery reports what happened to a persisted message.
type Delivery struct {
	Message   domain.ChatMessage
	Delivered int  // receiver sessions reached
	Echoed    int  // sender's other sessions reached
	Pushed    bool // push fallback attempted
}

type ChatService struct {
	store      MessageStore
	users      UserDirectory
	presence   Presence
	dispatcher Dispatcher
	maxBody    int
	locks      pairLocks
	logger     *slog.Logger
}

func NewChatService(store MessageStore, users UserDirectory, presence Presence, dispatcher Dispatcher, maxBody int, logger *slog.Logger) *ChatService {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyLength
	}
	return &ChatService{
		store:      store,
		users:      users,
		presence:   presence,
		dispatcher: dispatcher,
		maxBody:    maxBody,
		logger:     logger.With("component", "chat_service"),
	}
}

// Send persists the message and then delivers it live or via push. Only
// validation and persistence errors are returned; delivery is best effort.
func (s *ChatService) Send(ctx context.Context, sender domain.Identity, originSessionID string, req SendRequest) (Delivery, error) {
	if sender.IsZero() {
		return Delivery{}, domain.ErrUnauthenticated
	}
	msg, err := domain.NewChatMessage(sender.UserID, req.ReceiverID, req.Body, req.Attachment, s.maxBody)
	if err != nil {
		return Delivery{}, err
	}

	receiver, err := s.users.GetUser(ctx, msg.ReceiverID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return Delivery{}, fmt.Errorf("%w: %s", domain.ErrRecipientNotFound, msg.ReceiverID)
		}
		return Delivery{}, fmt.Errorf("lookup receiver: %w", err)
	}

	unlock := s.locks.lock(msg.SenderID, msg.ReceiverID)
	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		unlock()
		s.logger.Error("persist message failed", "sender_id", msg.SenderID, "receiver_id", msg.ReceiverID, "err", err)
		return Delivery{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	d := Delivery{Message: stored}
	ev := registry.Event{Type: EventReceiveMessage, Payload: NewMessagePayload(stored)}

	targets := s.presence.SessionsFor(stored.ReceiverID)
	if len(targets) > 0 {
		var errs []error
		d.Delivered, errs = registry.Deliver(targets, "", ev)
		if stored.SenderID != stored.ReceiverID {
			var echoErrs []error
			d.Echoed, echoErrs = registry.Deliver(s.presence.SessionsFor(stored.SenderID), originSessionID, ev)
			errs = append(errs, echoErrs...)
		}
		unlock()
		for _, e := range errs {
			s.logger.Warn("live delivery failed", "message_id", stored.ID, "err", e)
		}
		return d, nil
	}
	unlock()

	d.Pushed = true
	if err := s.dispatcher.DispatchChat(ctx, s.notification(ctx, stored, receiver)); err != nil {
		s.logger.Info("chat push not delivered", "message_id", stored.ID, "receiver_id", stored.ReceiverID, "err", err)
	}
	return d, nil
}

func (s *ChatService) notification(ctx context.Context, m domain.ChatMessage, receiver domain.User) ChatNotification {
	senderName := m.SenderID
	if u, err := s.users.GetUser(ctx, m.SenderID); err == nil {
		senderName = u.Name()
	}
	return ChatNotification{
		RecipientID: m.ReceiverID,
		AppVariant:  domain.VariantForRole(receiver.Role),
		SenderID:    m.SenderID,
		SenderName:  senderName,
		MessageID:   m.ID,
		Body:        m.Text(),
		Attachment:  m.Attachment,
	}
}

// History returns a page of the conversation between user1 and user2, oldest
// first, and the cursor of the next older page.
func (s *ChatService) History(ctx context.Context, caller domain.Identity, user1, user2, before string, limit int) ([]domain.ChatMessage, string, error) {
	if caller.IsZero() {
		return nil, "", domain.ErrUnauthenticated
	}
	if user1 == "" || user2 == "" {
		return nil, "", domain.ErrInvalidArgument
	}
	if caller.UserID != user1 && caller.UserID != user2 && !caller.Privileged() {
		return nil, "", domain.ErrForbidden
	}
	if _, err := pagination.Decode(before); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return s.store.Conversation(ctx, user1, user2, before, limit)
}

func (s *ChatService) Conversations(ctx context.Context, caller domain.Identity) ([]domain.ConversationSummary, error) {
	if caller.IsZero() {
		return nil, domain.ErrUnauthenticated
	}
	return s.store.Conversations(ctx, caller.UserID)
}

const pairStripes = 64

// pairLocks serialises persist+fan-out per unordered user pair.
type pairLocks [pairStripes]sync.Mutex

func (p *pairLocks) lock(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(a))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(b))
	mu := &p[h.Sum32()%pairStripes]
	mu.Lock()
	return mu.Unlock
}
