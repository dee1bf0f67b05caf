package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/comms-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/comms-service/internal/transport/ws"
	"github.com/cwrk-planet/comms-service/pkg/httputil"
)

type RouterConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, auth httpmw.Authenticator, wsServer *ws.Server, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareLogging(logger))
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// WS авторизуется сам: браузер не умеет слать заголовки при upgrade
	r.Get("/ws", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(auth))
		pr.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		pr.Post("/chat-history", h.ChatHistory)
		pr.Get("/chat-history", h.ChatHistory)
		pr.Get("/chat/conversations", h.Conversations)

		pr.Post("/notifications/send-chat-message", h.SendChatNotification)
		pr.Post("/notifications/send-incoming-call", h.SendIncomingCall)

		pr.Post("/users/save-fcm-token", h.SaveToken)
	})

	r.Get("/healthz", h.Health)

	return r
}
