package service

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

// Server->client event types.
const (
	EventReceiveMessage      = "ReceiveMessage"
	EventIncomingCall        = "IncomingCall"
	EventReceiveOffer        = "ReceiveOffer"
	EventReceiveAnswer       = "ReceiveAnswer"
	EventReceiveIceCandidate = "ReceiveIceCandidate"
	EventCallAccepted        = "CallAccepted"
	EventCallRejected        = "CallRejected"
	EventCallEnded           = "CallEnded"
)

type MessagePayload struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    *string   `json:"message,omitempty"`
	FileURL    string    `json:"fileUrl,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	FileType   string    `json:"fileType,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

func NewMessagePayload(m domain.ChatMessage) MessagePayload {
	p := MessagePayload{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Body,
		SentAt:     m.SentAt,
	}
	if a := m.Attachment; a != nil {
		p.FileURL, p.FileName, p.FileType = a.URL, a.Name, a.MimeType
	}
	return p
}

type IncomingCallPayload struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
}

// SignalPayload carries the opaque SDP/ICE blob untouched.
type SignalPayload struct {
	FromID  string          `json:"fromId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CallEndedPayload struct {
	FromID string `json:"fromId"`
	Reason string `json:"reason"`
}

const (
	EndReasonHangup       = "hangup"
	EndReasonDisconnected = "disconnected"
)
