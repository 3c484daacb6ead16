package logger

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// instanceID различает процессы клиента на одной машине: host-pid-uuid8.
func instanceID(v string) string {
	if v != "" {
		return v
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

func commonAttrs(cfg Config) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return attrs
}

// Component возвращает логгер с атрибутом component, чтобы различать подсистемы клиента.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = L()
	}
	return l.With(slog.String("component", name))
}

// Session привязывает логи к пользователю сессии; после Replace user_id сменится.
func Session(l *slog.Logger, userID int64) *slog.Logger {
	if l == nil {
		l = L()
	}
	return l.With(slog.Int64("user_id", userID))
}
