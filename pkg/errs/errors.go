package errs

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/pagination"
)

var ErrInvalidInput = errors.New("invalid input")

func ToHTTP(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, pagination.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNoTokenRegistered):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing text for err; internal details are hidden.
func Message(err error) string {
	switch ToHTTP(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusBadGateway:
		// только нормализованный код, без текста провайдера
		var de *domain.DeliveryError
		if errors.As(err, &de) {
			return domain.ErrGatewayDeliveryFailed.Error() + ": " + de.Code
		}
		return domain.ErrGatewayDeliveryFailed.Error()
	case http.StatusConflict:
		return domain.ErrConflict.Error()
	}
	return err.Error()
}
