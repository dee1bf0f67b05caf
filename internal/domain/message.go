package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type ChatMessage struct {
	ID         string
	SenderID   string
	ReceiverID string
	Body       *string
	Attachment *Attachment
	SentAt     time.Time
}

func (m ChatMessage) Text() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// NewChatMessage validates and normalises an outbound message. ID and SentAt are
// assigned by the store.
func NewChatMessage(senderID, receiverID string, body *string, att *Attachment, maxBody int) (ChatMessage, error) {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(receiverID) == "" {
		return ChatMessage{}, ErrInvalidArgument
	}

	// whitespace-only body counts as absent; otherwise stored as sent
	var text *string
	if body != nil && strings.TrimSpace(*body) != "" {
		t := *body
		text = &t
	}
	if att != nil && strings.TrimSpace(att.URL) == "" && strings.TrimSpace(att.Name) == "" && strings.TrimSpace(att.MimeType) == "" {
		att = nil
	}
	if text == nil && att == nil {
		return ChatMessage{}, ErrEmptyMessage
	}
	if att != nil && strings.TrimSpace(att.URL) == "" {
		return ChatMessage{}, ErrInvalidArgument
	}
	if text != nil && maxBody > 0 && utf8.RuneCountInString(*text) > maxBody {
		return ChatMessage{}, ErrInvalidArgument
	}

	return ChatMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       text,
		Attachment: att,
	}, nil
}

// Counterpart returns the other side of the message relative to userID.
func (m ChatMessage) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ConversationSummary is derived per user, one per counterpart.
type ConversationSummary struct {
	CounterpartID string
	LastMessage   ChatMessage
	MessageCount  int
}
