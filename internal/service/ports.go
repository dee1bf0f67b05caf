package service

import (
	"context"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/registry"
)

type MessageStore interface {
	Append(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error)
	Conversation(ctx context.Context, user1, user2, before string, limit int) ([]domain.ChatMessage, string, error)
	Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type TokenStore interface {
	Upsert(ctx context.Context, t domain.DeviceToken) error
	Get(ctx context.Context, userID string, v domain.AppVariant) (domain.DeviceToken, error)
	Delete(ctx context.Context, userID string, v domain.AppVariant, token string) error
}

// Presence is the read side of the connection registry.
type Presence interface {
	SessionsFor(userID string) []registry.Session
}

// Dispatcher sends push notifications to offline users. Errors are informational:
// callers log and drop them.
type Dispatcher interface {
	DispatchChat(ctx context.Context, n ChatNotification) error
	DispatchIncomingCall(ctx context.Context, recipientID, callerID, callerName string) error
}
