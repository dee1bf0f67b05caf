package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/push"
)

const (
	ChannelChatMessages  = "chat_messages"
	ChannelIncomingCalls = "incoming_calls"

	SoundDefault  = "default"
	SoundRingtone = "ringtone"
)

// ChatNotification describes one chat push.
type ChatNotification struct {
	RecipientID string
	AppVariant  domain.AppVariant
	SenderID    string
	SenderName  string
	MessageID   string
	Body        string
	Attachment  *domain.Attachment
}

type NotificationConfig struct {
	EvictOnPermanentError bool
	CallTTL               time.Duration
}

type NotificationService struct {
	tokens  TokenStore
	users   UserDirectory
	gateway push.Gateway
	cfg     NotificationConfig
	logger  *slog.Logger
}

func NewNotificationService(tokens TokenStore, users UserDirectory, gateway push.Gateway, cfg NotificationConfig, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		tokens:  tokens,
		users:   users,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With("component", "notification_service"),
	}
}

func (s *NotificationService) DispatchChat(ctx context.Context, n ChatNotification) error {
	if n.RecipientID == "" {
		return domain.ErrInvalidArgument
	}
	variant := n.AppVariant
	if variant == "" {
		variant = s.variantFor(ctx, n.RecipientID)
	}

	body := n.Body
	if body == "" && n.Attachment != nil {
		name := n.Attachment.Name
		if name == "" {
			name = "file"
		}
		body = "Sent an attachment: " + name
	}
	title := n.SenderName
	if title == "" {
		title = n.SenderID
	}

	data := map[string]string{
		"senderId":   n.SenderID,
		"senderName": title,
	}
	if n.MessageID != "" {
		data["messageId"] = n.MessageID
	}
	if a := n.Attachment; a != nil {
		data["fileUrl"] = a.URL
		data["fileName"] = a.Name
		data["fileType"] = a.MimeType
	}

	return s.send(ctx, n.RecipientID, variant, push.Message{
		Kind:      push.KindChatMessage,
		Title:     title,
		Body:      body,
		ChannelID: ChannelChatMessages,
		Sound:     SoundDefault,
		Data:      data,
	})
}

// DispatchIncomingCall pushes a ringing notification to the app matching the
// recipient's role.
func (s *NotificationService) DispatchIncomingCall(ctx context.Context, recipientID, callerID, callerName string) error {
	if recipientID == "" || callerID == "" {
		return domain.ErrInvalidArgument
	}
	user, err := s.users.GetUser(ctx, recipientID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrRecipientNotFound, recipientID)
		}
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if callerName == "" {
		callerName = callerID
	}

	return s.send(ctx, recipientID, domain.VariantForRole(user.Role), push.Message{
		Kind:         push.KindIncomingCall,
		Title:        callerName,
		Body:         "Incoming call",
		ChannelID:    ChannelIncomingCalls,
		Sound:        SoundRingtone,
		HighPriority: true,
		TTL:          s.cfg.CallTTL,
		Data: map[string]string{
			"callerId":   callerID,
			"callerName": callerName,
		},
	})
}

// variantFor picks the app from the user's role; unknown users get the client app.
func (s *NotificationService) variantFor(ctx context.Context, userID string) domain.AppVariant {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.AppClient
	}
	return domain.VariantForRole(u.Role)
}

func (s *NotificationService) send(ctx context.Context, userID string, v domain.AppVariant, msg push.Message) error {
	tok, err := s.tokens.Get(ctx, userID, v)
	if err != nil {
		if errors.Is(err, domain.ErrNoTokenRegistered) {
			s.logger.Debug("no push token", "user_id", userID, "app", v, "type", msg.Kind)
			return err
		}
		return fmt.Errorf("load token: %w", err)
	}
	msg.Token = tok.Token

	if err := s.gateway.Send(ctx, msg); err != nil {
		code := push.CodeOf(err)
		s.logger.Warn("push delivery failed",
			"user_id", userID,
			"app", v,
			"type", msg.Kind,
			"code", code,
			"err", err,
		)
		if s.cfg.EvictOnPermanentError && push.IsPermanent(err) {
			if derr := s.tokens.Delete(ctx, userID, v, tok.Token); derr != nil {
				s.logger.Error("evict token failed", "user_id", userID, "app", v, "err", derr)
			} else {
				s.logger.Info("evicted push token", "user_id", userID, "app", v, "code", code)
			}
		}
		return &domain.DeliveryError{Code: code, Err: err}
	}

	s.logger.Debug("push sent", "user_id", userID, "app", v, "type", msg.Kind)
	return nil
}
