package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

func TestToHTTP(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{fmt.Errorf("send: %w", domain.ErrEmptyMessage), http.StatusBadRequest},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: bob", domain.ErrRecipientNotFound), http.StatusNotFound},
		{domain.ErrNoTokenRegistered, http.StatusNotFound},
		{domain.ErrGatewayDeliveryFailed, http.StatusBadGateway},
		{&domain.DeliveryError{Code: "unavailable", Err: errors.New("503 from provider")}, http.StatusBadGateway},
		{fmt.Errorf("%w: messages_pkey", domain.ErrConflict), http.StatusConflict},
		{domain.ErrPersistence, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTP(tt.err), tt.err.Error())
	}
}

func TestMessage_HidesInternal(t *testing.T) {
	assert.Equal(t, "internal error", Message(fmt.Errorf("%w: pg down", domain.ErrPersistence)))
	assert.Equal(t, "forbidden", Message(domain.ErrForbidden))
}

func TestMessage_GatewayFailureShowsOnlyCode(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &domain.DeliveryError{
		Code: "unregistered",
		Err:  errors.New("fcm: requested entity was not found (project=clinic-prod)"),
	})
	assert.Equal(t, "push gateway delivery failed: unregistered", Message(err))
	assert.NotContains(t, Message(err), "clinic-prod")

	assert.Equal(t, "conflict", Message(fmt.Errorf("%w: messages_pkey", domain.ErrConflict)))
}
