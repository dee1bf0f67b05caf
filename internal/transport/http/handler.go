package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/service"
	httpmw "github.com/cwrk-planet/comms-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/comms-service/pkg/errs"
	"github.com/cwrk-planet/comms-service/pkg/httputil"
)

type ChatSvc interface {
	History(ctx context.Context, caller domain.Identity, user1, user2, before string, limit int) ([]domain.ChatMessage, string, error)
	Conversations(ctx context.Context, caller domain.Identity) ([]domain.ConversationSummary, error)
}

type TokenSvc interface {
	SaveToken(ctx context.Context, userID, appVariant, token string) error
}

type Stats interface {
	Stats() (users, sessions int)
}

type Handler struct {
	chatSvc    ChatSvc
	tokenSvc   TokenSvc
	dispatcher service.Dispatcher
	stats      Stats
}

func NewHandler(chat ChatSvc, tokens TokenSvc, dispatcher service.Dispatcher, stats Stats) *Handler {
	return &Handler{
		chatSvc:    chat,
		tokenSvc:   tokens,
		dispatcher: dispatcher,
		stats:      stats,
	}
}

// POST /chat-history?user1=&user2=&before=&limit=
// Returns one page, not the whole conversation: the newest `limit` messages
// (default 100, max 500) older than `before`, in ascending order. Follow
// nextCursor as `before` until it comes back empty to read everything.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			httputil.Fail(r.Context(), w, errs.ErrInvalidInput)
			return
		}
		limit = n
	}

	caller := httpmw.IdentityFromCtx(r.Context())
	msgs, next, err := h.chatSvc.History(r.Context(), caller, q.Get("user1"), q.Get("user2"), q.Get("before"), limit)
	if err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}

	out := ChatHistoryResponse{Items: make([]ChatMessageItem, 0, len(msgs)), NextCursor: next}
	for _, m := range msgs {
		out.Items = append(out.Items, toChatItem(m))
	}
	httputil.OK(w, out)
}

// GET /chat/conversations
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	sums, err := h.chatSvc.Conversations(r.Context(), httpmw.IdentityFromCtx(r.Context()))
	if err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	out := make([]ConversationItem, 0, len(sums))
	for _, s := range sums {
		out = append(out, ConversationItem{
			CounterpartID: s.CounterpartID,
			LastMessage:   toChatItem(s.LastMessage),
			MessageCount:  s.MessageCount,
		})
	}
	httputil.OK(w, out)
}

// POST /notifications/send-chat-message
func (h *Handler) SendChatNotification(w http.ResponseWriter, r *http.Request) {
	var req SendChatNotificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	if !actsAs(r.Context(), req.SenderID) {
		httputil.Fail(r.Context(), w, domain.ErrForbidden)
		return
	}

	n := service.ChatNotification{
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		SenderName:  req.SenderName,
		MessageID:   req.MessageID,
		Body:        req.Message,
	}
	if req.AppType != "" {
		v, ok := domain.ParseAppVariant(req.AppType)
		if !ok {
			httputil.Fail(r.Context(), w, domain.ErrInvalidArgument)
			return
		}
		n.AppVariant = v
	}
	if req.FileURL != "" || req.FileName != "" {
		n.Attachment = &domain.Attachment{URL: req.FileURL, Name: req.FileName, MimeType: req.FileType}
	}
	if n.Body == "" && n.Attachment == nil {
		httputil.Fail(r.Context(), w, domain.ErrEmptyMessage)
		return
	}

	if err := h.dispatcher.DispatchChat(r.Context(), n); err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	httputil.OK(w, StatusResponse{Status: "sent"})
}

// POST /notifications/send-incoming-call
func (h *Handler) SendIncomingCall(w http.ResponseWriter, r *http.Request) {
	var req SendIncomingCallRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	if !actsAs(r.Context(), req.CallerID) {
		httputil.Fail(r.Context(), w, domain.ErrForbidden)
		return
	}
	if err := h.dispatcher.DispatchIncomingCall(r.Context(), req.RecipientID, req.CallerID, req.CallerName); err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	httputil.OK(w, StatusResponse{Status: "sent"})
}

// POST /users/save-fcm-token
func (h *Handler) SaveToken(w http.ResponseWriter, r *http.Request) {
	var req SaveTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	if req.UserID != "" && !actsAs(r.Context(), req.UserID) {
		httputil.Fail(r.Context(), w, domain.ErrForbidden)
		return
	}
	if err := h.tokenSvc.SaveToken(r.Context(), req.UserID, req.AppType, req.Token); err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	httputil.OK(w, StatusResponse{Status: "saved"})
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	users, sessions := h.stats.Stats()
	httputil.OK(w, HealthResponse{Status: "ok", Users: users, Sessions: sessions})
}

// actsAs: пользователь действует от своего имени, сервисы и админы от любого.
func actsAs(ctx context.Context, userID string) bool {
	id := httpmw.IdentityFromCtx(ctx)
	return id.Privileged() || (userID != "" && id.UserID == userID)
}
