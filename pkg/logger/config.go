package logger

import (
	"io"
	"log/slog"
	"strings"
)

type Backend string

const (
	BackendStd Backend = "std" // текстовый вывод, для dev
	BackendZap Backend = "zap" // JSON через slog-zap, для stage/prod
)

type Config struct {
	// Метаданные клиента
	Service    string
	Version    string
	InstanceID string

	// Управление выводом
	Level   slog.Level
	Env     Env
	Backend Backend // по умолчанию: std для dev, zap для остальных
	Debug   bool
	Output  io.Writer // os.Stdout, если не задан

	// Zap sampling
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}

// ParseLevel понимает debug|info|warn|error, остальное считается info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}
