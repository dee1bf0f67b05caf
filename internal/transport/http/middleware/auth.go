package httpmw

import (
	"context"
	"net/http"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/security"
	"github.com/cwrk-planet/comms-service/pkg/httputil"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

type Authenticator interface {
	ParseAndValidate(token string) (domain.Identity, error)
}

// AuthMiddleware требует валидный Bearer JWT и кладёт Identity в контекст.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.ParseAndValidate(security.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				httputil.LoggerFrom(r.Context()).Debug("auth rejected", "err", err)
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthenticated", nil)
				return
			}
			l := httputil.LoggerFrom(r.Context()).With("user_id", id.UserID)
			ctx := httputil.WithLogger(WithIdentity(r.Context(), id), l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(ctxKeyIdentity).(domain.Identity); ok {
		return id
	}
	return domain.Identity{}
}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}
