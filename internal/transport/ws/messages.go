package ws

import "encoding/json"

// Входящие вызовы клиента
const (
	TypeSendMessage      = "SendMessage"
	TypeStartCall        = "StartCall"
	TypeSendOffer        = "SendOffer"
	TypeSendAnswer       = "SendAnswer"
	TypeSendIceCandidate = "SendIceCandidate"
	TypeAcceptCall       = "AcceptCall"
	TypeRejectCall       = "RejectCall"
	TypeEndCall          = "EndCall"
)

// Ответы только вызывающей сессии
const (
	TypeMessageAck = "MessageAck" // сообщение сохранено (НЕ само сообщение)
	TypeError      = "Error"
)

// Inbound is one client->server frame; payload is decoded per type.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SendMessagePayload struct {
	ReceiverID string  `json:"receiverId"`
	Message    *string `json:"message,omitempty"`
	FileURL    string  `json:"fileUrl,omitempty"`
	FileName   string  `json:"fileName,omitempty"`
	FileType   string  `json:"fileType,omitempty"`

	// ClientID is echoed in the ack so the client can clear its pending state.
	ClientID string `json:"clientId,omitempty"`
}

type StartCallPayload struct {
	ToID     string `json:"toId"`
	FromName string `json:"fromName"`
}

type SignalPayload struct {
	ToID    string          `json:"toId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type MessageAckPayload struct {
	ClientID string `json:"clientId,omitempty"`
	ID       string `json:"id"`
	SentAt   int64  `json:"sentAtUnixMs"`
	Live     bool   `json:"live"`
}

type ErrorPayload struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
}
