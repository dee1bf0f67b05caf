package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/memstore"
	"github.com/cwrk-planet/comms-service/internal/push"
	"github.com/cwrk-planet/comms-service/internal/registry"
	"github.com/cwrk-planet/comms-service/internal/registry/registrytest"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func text(s string) *string { return &s }

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Send(ctx context.Context, msg push.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// recordingDispatcher counts dispatch attempts without touching a gateway.
type recordingDispatcher struct {
	mu    sync.Mutex
	chats []ChatNotification
	calls []string
	err   error
}

func (d *recordingDispatcher) DispatchChat(_ context.Context, n ChatNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chats = append(d.chats, n)
	return d.err
}

func (d *recordingDispatcher) DispatchIncomingCall(_ context.Context, recipientID, callerID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, recipientID+"<-"+callerID)
	return d.err
}

type failingStore struct {
	*memstore.MessageStore
}

func (failingStore) Append(context.Context, domain.ChatMessage) (domain.ChatMessage, error) {
	return domain.ChatMessage{}, errors.New("disk full")
}

type fixture struct {
	reg      *registry.Registry
	store    *memstore.MessageStore
	users    *memstore.Users
	tokens   *memstore.Tokens
	dispatch *recordingDispatcher
	chat     *ChatService
	calls    *CallService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:   registry.New(),
		store: memstore.NewMessageStore(),
		users: memstore.NewUsers(
			domain.User{ID: "S", DisplayName: "Sam", Role: domain.RoleClient},
			domain.User{ID: "R", DisplayName: "Dr. Rowe", Role: domain.RoleVet},
			domain.User{ID: "C", DisplayName: "Cat owner", Role: domain.RoleClient},
			domain.User{ID: "D", DisplayName: "Dr. Dee", Role: domain.RoleVet},
		),
		tokens:   memstore.NewTokens(),
		dispatch: &recordingDispatcher{},
	}
	f.chat = NewChatService(f.store, f.users, f.reg, f.dispatch, 0, discard())
	f.calls = NewCallService(f.reg, f.dispatch, discard())
	return f
}

func (f *fixture) connect(userID, sessionID string) *registrytest.Recorder {
	r := registrytest.NewRecorder(userID, sessionID)
	f.reg.Register(userID, sessionID, r)
	return r
}

func TestChat_LiveFanOutAndEcho(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	s1 := f.connect("S", "s1")
	s2 := f.connect("S", "s2")
	r1 := f.connect("R", "r1")

	d, err := f.chat.Send(ctx, domain.Identity{UserID: "S"}, "s1", SendRequest{ReceiverID: "R", Body: text("hello")})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Delivered)
	assert.Equal(t, 1, d.Echoed)
	assert.False(t, d.Pushed)

	require.Len(t, r1.Events(), 1)
	got := r1.Events()[0]
	assert.Equal(t, EventReceiveMessage, got.Type)
	p := got.Payload.(MessagePayload)
	assert.Equal(t, "S", p.SenderID)
	assert.Equal(t, "hello", *p.Message)

	require.Len(t, s2.Events(), 1)
	assert.Equal(t, got, s2.Events()[0])
	assert.Empty(t, s1.Events(), "originating session must not get an echo")
	assert.Empty(t, f.dispatch.chats)

	stored := f.store.All()
	require.Len(t, stored, 1)
	assert.Equal(t, stored[0].ID, p.ID)
}

func TestChat_OfflineFallsBackToPush(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.connect("S", "s1")

	d, err := f.chat.Send(ctx, domain.Identity{UserID: "S"}, "s1", SendRequest{ReceiverID: "R", Body: text("are you there")})
	require.NoError(t, err)
	assert.True(t, d.Pushed)

	require.Len(t, f.dispatch.chats, 1)
	n := f.dispatch.chats[0]
	assert.Equal(t, "R", n.RecipientID)
	assert.Equal(t, domain.AppVet, n.AppVariant)
	assert.Equal(t, "Sam", n.SenderName)
	assert.Equal(t, "are you there", n.Body)
}

func TestChat_PushFailureDoesNotFailSend(t *testing.T) {
	f := setup(t)
	f.dispatch.err = domain.ErrNoTokenRegistered

	_, err := f.chat.Send(context.Background(), domain.Identity{UserID: "S"}, "", SendRequest{ReceiverID: "R", Body: text("hi")})
	require.NoError(t, err)
	assert.Len(t, f.dispatch.chats, 1)
	assert.Len(t, f.store.All(), 1)
}

func TestChat_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sender := domain.Identity{UserID: "S"}

	_, err := f.chat.Send(ctx, sender, "", SendRequest{ReceiverID: "R", Body: text("  ")})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)

	_, err = f.chat.Send(ctx, sender, "", SendRequest{Body: text("hi")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.chat.Send(ctx, sender, "", SendRequest{ReceiverID: "ghost", Body: text("hi")})
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)

	_, err = f.chat.Send(ctx, domain.Identity{}, "", SendRequest{ReceiverID: "R", Body: text("hi")})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	assert.Empty(t, f.store.All())
	assert.Empty(t, f.dispatch.chats)
}

func TestChat_PersistenceFailureAbortsDelivery(t *testing.T) {
	f := setup(t)
	r1 := f.connect("R", "r1")
	chat := NewChatService(failingStore{f.store}, f.users, f.reg, f.dispatch, 0, discard())

	_, err := chat.Send(context.Background(), domain.Identity{UserID: "S"}, "", SendRequest{ReceiverID: "R", Body: text("hi")})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, r1.Events())
	assert.Empty(t, f.dispatch.chats)
}

func TestChat_FailedSessionDoesNotFailSend(t *testing.T) {
	f := setup(t)
	bad := f.connect("R", "r1")
	bad.FailWith(registry.ErrSessionBufferFull)
	good := f.connect("R", "r2")

	d, err := f.chat.Send(context.Background(), domain.Identity{UserID: "S"}, "", SendRequest{ReceiverID: "R", Body: text("hi")})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Delivered)
	assert.Len(t, good.Events(), 1)
}

func TestChat_SelfMessageIsNotEchoedTwice(t *testing.T) {
	f := setup(t)
	a := f.connect("S", "s1")
	b := f.connect("S", "s2")

	d, err := f.chat.Send(context.Background(), domain.Identity{UserID: "S"}, "s1", SendRequest{ReceiverID: "S", Body: text("note to self")})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Delivered)
	assert.Equal(t, 0, d.Echoed)
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestChat_ConcurrentSendsKeepPersistedOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	r1 := f.connect("R", "r1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.chat.Send(ctx, domain.Identity{UserID: "S"}, "", SendRequest{ReceiverID: "R", Body: text("x")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored := f.store.All()
	events := r1.Events()
	require.Len(t, events, len(stored))
	for i := range stored {
		assert.Equal(t, stored[i].ID, events[i].Payload.(MessagePayload).ID)
	}
}

func TestChat_History(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for _, body := range []string{"one", "two", "three"} {
		_, err := f.chat.Send(ctx, domain.Identity{UserID: "S"}, "", SendRequest{ReceiverID: "R", Body: text(body)})
		require.NoError(t, err)
	}

	msgs, next, err := f.chat.History(ctx, domain.Identity{UserID: "R"}, "S", "R", "", 0)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text())
	assert.Equal(t, "three", msgs[2].Text())

	_, _, err = f.chat.History(ctx, domain.Identity{UserID: "C"}, "S", "R", "", 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.chat.History(ctx, domain.Identity{UserID: "admin", Role: domain.RoleAdmin}, "S", "R", "", 0)
	assert.NoError(t, err)

	_, _, err = f.chat.History(ctx, domain.Identity{UserID: "R"}, "S", "R", "%%%", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	sums, err := f.chat.Conversations(ctx, domain.Identity{UserID: "R"})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 3, sums[0].MessageCount)
}

func TestCall_IncomingCallOfflineThenAcceptIsNoop(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out := f.calls.Route(ctx, domain.CallSignal{Type: domain.SignalIncomingCall, FromID: "C", FromName: "Cat owner", ToID: "D"})
	assert.True(t, out.Pushed)
	assert.Equal(t, 0, out.Delivered)
	assert.Equal(t, []string{"D<-C"}, f.dispatch.calls)

	out = f.calls.Route(ctx, domain.CallSignal{Type: domain.SignalAccept, FromID: "D", ToID: "C"})
	assert.Equal(t, Outcome{}, out)
	assert.Len(t, f.dispatch.calls, 1, "only incoming-call falls back to push")
}

func TestCall_OfferToOfflinePeerIsSilent(t *testing.T) {
	f := setup(t)
	out := f.calls.Route(context.Background(), domain.CallSignal{Type: domain.SignalOffer, FromID: "C", ToID: "D", Payload: json.RawMessage(`{"sdp":"v=0"}`)})
	assert.Equal(t, Outcome{}, out)
	assert.Empty(t, f.dispatch.calls)
}

func TestCall_FullSignallingSequence(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.connect("C", "c1")
	d := f.connect("D", "d1")
	other := f.connect("S", "s1")

	seq := []domain.CallSignal{
		{Type: domain.SignalIncomingCall, FromID: "C", FromName: "Cat owner", ToID: "D"},
		{Type: domain.SignalAccept, FromID: "D", ToID: "C"},
		{Type: domain.SignalOffer, FromID: "C", ToID: "D", Payload: json.RawMessage(`{"sdp":"offer"}`)},
		{Type: domain.SignalAnswer, FromID: "D", ToID: "C", Payload: json.RawMessage(`{"sdp":"answer"}`)},
		{Type: domain.SignalICECandidate, FromID: "C", ToID: "D", Payload: json.RawMessage(`{"candidate":"1"}`)},
		{Type: domain.SignalICECandidate, FromID: "C", ToID: "D", Payload: json.RawMessage(`{"candidate":"2"}`)},
	}
	for _, sig := range seq {
		out := f.calls.Route(ctx, sig)
		assert.Equal(t, 1, out.Delivered, sig.Type)
	}
	assert.Equal(t, domain.CallActive, f.calls.State("D", "C"))

	var dTypes []string
	for _, ev := range d.Events() {
		dTypes = append(dTypes, ev.Type)
	}
	assert.Equal(t, []string{EventIncomingCall, EventReceiveOffer, EventReceiveIceCandidate, EventReceiveIceCandidate}, dTypes)
	assert.JSONEq(t, `{"candidate":"1"}`, string(d.Events()[2].Payload.(SignalPayload).Payload))
	assert.JSONEq(t, `{"candidate":"2"}`, string(d.Events()[3].Payload.(SignalPayload).Payload))

	var cTypes []string
	for _, ev := range c.Events() {
		cTypes = append(cTypes, ev.Type)
	}
	assert.Equal(t, []string{EventCallAccepted, EventReceiveAnswer}, cTypes)
	assert.Empty(t, other.Events())
	assert.Empty(t, f.dispatch.calls)
}

func TestCall_DisconnectEndsActiveCall(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.connect("C", "c1")
	f.connect("D", "d1")

	f.calls.Route(ctx, domain.CallSignal{Type: domain.SignalIncomingCall, FromID: "C", ToID: "D"})
	f.calls.Route(ctx, domain.CallSignal{Type: domain.SignalAccept, FromID: "D", ToID: "C"})

	f.calls.OnDisconnect("D", 1)
	assert.Equal(t, domain.CallConnecting, f.calls.State("C", "D"), "other sessions still open")

	remaining := f.reg.Unregister("D", "d1")
	f.calls.OnDisconnect("D", remaining)

	evs := c.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, EventCallEnded, last.Type)
	assert.Equal(t, CallEndedPayload{FromID: "D", Reason: EndReasonDisconnected}, last.Payload)
	assert.Equal(t, domain.CallIdle, f.calls.State("C", "D"))
}

func TestCall_RingingIsNotEndedOnDisconnect(t *testing.T) {
	f := setup(t)
	c := f.connect("C", "c1")
	f.connect("D", "d1")

	f.calls.Route(context.Background(), domain.CallSignal{Type: domain.SignalIncomingCall, FromID: "C", ToID: "D"})
	f.calls.OnDisconnect("D", f.reg.Unregister("D", "d1"))

	assert.Empty(t, c.Events())
}

func TestNotification_ChatUsesTokenAndChannel(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	gw := new(mockGateway)
	svc := NewNotificationService(f.tokens, f.users, gw, NotificationConfig{EvictOnPermanentError: true}, discard())
	require.NoError(t, f.tokens.Upsert(ctx, domain.DeviceToken{UserID: "R", AppVariant: domain.AppVet, Token: "tok-r"}))

	gw.On("Send", ctx, mock.MatchedBy(func(m push.Message) bool {
		return m.Token == "tok-r" &&
			m.Kind == push.KindChatMessage &&
			m.ChannelID == ChannelChatMessages &&
			m.Sound == SoundDefault &&
			m.Body == "Sent an attachment: xray.png" &&
			m.Data["senderId"] == "S"
	})).Return(nil).Once()

	err := svc.DispatchChat(ctx, ChatNotification{
		RecipientID: "R",
		AppVariant:  domain.AppVet,
		SenderID:    "S",
		SenderName:  "Sam",
		Attachment:  &domain.Attachment{URL: "https://f/x", Name: "xray.png"},
	})
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestNotification_NoToken(t *testing.T) {
	f := setup(t)
	gw := new(mockGateway)
	svc := NewNotificationService(f.tokens, f.users, gw, NotificationConfig{}, discard())

	err := svc.DispatchChat(context.Background(), ChatNotification{RecipientID: "R", AppVariant: domain.AppClient, SenderID: "S", Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrNoTokenRegistered)
	gw.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotification_IncomingCallResolvesVariantFromRole(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	gw := new(mockGateway)
	svc := NewNotificationService(f.tokens, f.users, gw, NotificationConfig{}, discard())
	require.NoError(t, f.tokens.Upsert(ctx, domain.DeviceToken{UserID: "D", AppVariant: domain.AppClient, Token: "wrong-app"}))
	require.NoError(t, f.tokens.Upsert(ctx, domain.DeviceToken{UserID: "D", AppVariant: domain.AppVet, Token: "vet-app"}))

	gw.On("Send", ctx, mock.MatchedBy(func(m push.Message) bool {
		return m.Token == "vet-app" &&
			m.Kind == push.KindIncomingCall &&
			m.HighPriority &&
			m.ChannelID == ChannelIncomingCalls &&
			m.Sound == SoundRingtone &&
			m.Data["callerId"] == "C"
	})).Return(nil).Once()

	require.NoError(t, svc.DispatchIncomingCall(ctx, "D", "C", "Cat owner"))
	gw.AssertExpectations(t)

	err := svc.DispatchIncomingCall(ctx, "ghost", "C", "Cat owner")
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
}

func TestNotification_PermanentFailureEvictsToken(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	gw := new(mockGateway)
	svc := NewNotificationService(f.tokens, f.users, gw, NotificationConfig{EvictOnPermanentError: true}, discard())
	require.NoError(t, f.tokens.Upsert(ctx, domain.DeviceToken{UserID: "R", AppVariant: domain.AppVet, Token: "stale"}))

	gw.On("Send", ctx, mock.Anything).Return(&push.Error{Code: push.CodeUnregistered, Err: errors.New("gone")}).Once()

	err := svc.DispatchChat(ctx, ChatNotification{RecipientID: "R", AppVariant: domain.AppVet, SenderID: "S", Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrGatewayDeliveryFailed)
	assert.Equal(t, push.CodeUnregistered, push.CodeOf(err))
	var de *domain.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, push.CodeUnregistered, de.Code)

	_, err = f.tokens.Get(ctx, "R", domain.AppVet)
	assert.ErrorIs(t, err, domain.ErrNoTokenRegistered)
}

func TestNotification_TransientFailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	gw := new(mockGateway)
	svc := NewNotificationService(f.tokens, f.users, gw, NotificationConfig{EvictOnPermanentError: true}, discard())
	require.NoError(t, f.tokens.Upsert(ctx, domain.DeviceToken{UserID: "R", AppVariant: domain.AppVet, Token: "ok"}))

	gw.On("Send", ctx, mock.Anything).Return(&push.Error{Code: push.CodeUnavailable, Err: errors.New("503")}).Once()

	err := svc.DispatchChat(ctx, ChatNotification{RecipientID: "R", AppVariant: domain.AppVet, SenderID: "S", Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrGatewayDeliveryFailed)

	_, err = f.tokens.Get(ctx, "R", domain.AppVet)
	assert.NoError(t, err)
}

func TestTokenService(t *testing.T) {
	ctx := context.Background()
	svc := NewTokenService(memstore.NewTokens(), discard())

	assert.ErrorIs(t, svc.SaveToken(ctx, "", "vet", "t"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, svc.SaveToken(ctx, "u", "desktop", "t"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, svc.SaveToken(ctx, "u", "vet", " "), domain.ErrInvalidArgument)

	require.NoError(t, svc.SaveToken(ctx, "u", "vet", "t1"))
	require.NoError(t, svc.SaveToken(ctx, "u", "Vet", "t2"))

	got, err := svc.GetToken(ctx, "u", domain.AppVet)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)

	_, err = svc.GetToken(ctx, "u", domain.AppClient)
	assert.ErrorIs(t, err, domain.ErrNoTokenRegistered)

	require.NoError(t, svc.DeleteToken(ctx, "u", domain.AppVet, "t2"))
	_, err = svc.GetToken(ctx, "u", domain.AppVet)
	assert.ErrorIs(t, err, domain.ErrNoTokenRegistered)
}
