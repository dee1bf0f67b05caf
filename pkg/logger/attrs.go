package logger

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// ensureInstanceID: явный id > POD_NAME (k8s) > hostname, плюс короткий суффикс,
// чтобы рестарты одного пода различались в логах.
func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	host := os.Getenv("POD_NAME")
	if host == "" {
		host, _ = os.Hostname()
	}
	if host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}

func commonAttrs(cfg Config) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("instance_id", cfg.InstanceID),
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return attrs
}
