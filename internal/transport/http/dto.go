package http

import (
	"time"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

type ChatMessageItem struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    *string   `json:"message,omitempty"`
	FileURL    string    `json:"fileUrl,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	FileType   string    `json:"fileType,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

func toChatItem(m domain.ChatMessage) ChatMessageItem {
	it := ChatMessageItem{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Body,
		SentAt:     m.SentAt,
	}
	if a := m.Attachment; a != nil {
		it.FileURL, it.FileName, it.FileType = a.URL, a.Name, a.MimeType
	}
	return it
}

type ChatHistoryResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

type ConversationItem struct {
	CounterpartID string          `json:"counterpartId"`
	LastMessage   ChatMessageItem `json:"lastMessage"`
	MessageCount  int             `json:"messageCount"`
}

type SendChatNotificationRequest struct {
	RecipientID string `json:"recipientId"`
	AppType     string `json:"appType,omitempty"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	MessageID   string `json:"messageId,omitempty"`
	Message     string `json:"message,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
}

type SendIncomingCallRequest struct {
	RecipientID string `json:"recipientId"`
	CallerID    string `json:"callerId"`
	CallerName  string `json:"callerName"`
}

type SaveTokenRequest struct {
	UserID  string `json:"userId"`
	Token   string `json:"token"`
	AppType string `json:"appType"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Users    int    `json:"onlineUsers"`
	Sessions int    `json:"sessions"`
}
