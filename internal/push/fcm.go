package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmSender is the part of *messaging.Client used by the gateway.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMGateway struct {
	client fcmSender
	logger *slog.Logger
}

// NewFCMGateway builds a Firebase app from a service-account file. An empty
// path falls back to Application Default Credentials.
func NewFCMGateway(ctx context.Context, credentialsFile string, logger *slog.Logger) (*FCMGateway, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return newFCMGateway(client, logger), nil
}

func newFCMGateway(client fcmSender, logger *slog.Logger) *FCMGateway {
	return &FCMGateway{client: client, logger: logger.With("component", "fcm_gateway")}
}

func (g *FCMGateway) Send(ctx context.Context, msg Message) error {
	id, err := g.client.Send(ctx, toFCM(msg))
	if err != nil {
		return &Error{Code: fcmCode(err), Err: err}
	}
	g.logger.Debug("fcm accepted", "type", msg.Kind, "fcm_id", id)
	return nil
}

func toFCM(msg Message) *messaging.Message {
	data := make(map[string]string, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["type"] = string(msg.Kind)

	priority, apnsPriority := "normal", "5"
	if msg.HighPriority {
		priority, apnsPriority = "high", "10"
	}

	android := &messaging.AndroidConfig{
		Priority: priority,
		Notification: &messaging.AndroidNotification{
			ChannelID: msg.ChannelID,
			Sound:     msg.Sound,
		},
	}
	if msg.TTL > 0 {
		ttl := msg.TTL
		android.TTL = &ttl
	}

	return &messaging.Message{
		Token: msg.Token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: android,
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: msg.Sound},
			},
		},
	}
}

func fcmCode(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return CodeUnregistered
	case messaging.IsInvalidArgument(err):
		return CodeInvalidArgument
	case messaging.IsQuotaExceeded(err):
		return CodeQuotaExceeded
	case messaging.IsSenderIDMismatch(err):
		return CodeSenderMismatch
	case messaging.IsThirdPartyAuthError(err):
		return CodeThirdPartyAuth
	case messaging.IsUnavailable(err):
		return CodeUnavailable
	case messaging.IsInternal(err):
		return CodeInternal
	}
	return CodeUnknown
}
