package push

import (
	"context"
	"log/slog"
)

// LogGateway only logs; used in dev when no provider is configured.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger.With("component", "log_gateway")}
}

func (g *LogGateway) Send(_ context.Context, msg Message) error {
	g.logger.Info("push (not sent)",
		"type", msg.Kind,
		"title", msg.Title,
		"channel", msg.ChannelID,
		"data", msg.Data,
	)
	return nil
}
