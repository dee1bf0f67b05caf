package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrRecipientNotFound     = errors.New("recipient not found")
	ErrEmptyMessage          = errors.New("message has neither body nor attachment")
	ErrPersistence           = errors.New("message store write failed")
	ErrNoTokenRegistered     = errors.New("no push token registered")
	ErrGatewayDeliveryFailed = errors.New("push gateway delivery failed")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrUserNotFound          = errors.New("user not found")
	ErrConflict              = errors.New("conflict")
)

// DeliveryError is a gateway failure carrying the normalised provider code.
// The wrapped provider error stays in logs, Code is what callers see.
type DeliveryError struct {
	Code string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrGatewayDeliveryFailed, e.Code, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrGatewayDeliveryFailed, e.Err} }
