// Package push hands notifications to an external push provider.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindChatMessage  Kind = "chat_message"
	KindIncomingCall Kind = "incoming_call"
)

// Message is provider-neutral; each Gateway maps it onto its own wire format.
type Message struct {
	Token        string            `json:"token"`
	Kind         Kind              `json:"type"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	ChannelID    string            `json:"channel_id"`
	Sound        string            `json:"sound"`
	HighPriority bool              `json:"high_priority"`
	TTL          time.Duration     `json:"ttl,omitempty"`
	Data         map[string]string `json:"data"`
}

type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// Provider error codes, normalised across gateways.
const (
	CodeUnregistered    = "unregistered"
	CodeInvalidArgument = "invalid_argument"
	CodeQuotaExceeded   = "quota_exceeded"
	CodeSenderMismatch  = "sender_id_mismatch"
	CodeThirdPartyAuth  = "third_party_auth"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
	CodeBrokerNack      = "broker_nack"
	CodeUnknown         = "unknown"
)

// Error is returned by every Gateway on delivery failure.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("push %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent reports whether the token itself is unusable and should be dropped.
func (e *Error) Permanent() bool {
	switch e.Code {
	case CodeUnregistered, CodeInvalidArgument, CodeSenderMismatch:
		return true
	}
	return false
}

// CodeOf extracts the provider code from err, or CodeUnknown.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// IsPermanent reports whether err carries a permanent provider code.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Permanent()
}
