package logger

import (
	"os"
	"strings"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

// EnvVar задаёт окружение клиента; APP_ENV читается, только если он пуст.
const EnvVar = "CHATSYNC_ENV"

func DetectEnv() Env {
	if v := os.Getenv(EnvVar); strings.TrimSpace(v) != "" {
		return ParseEnv(v)
	}
	return ParseEnv(os.Getenv("APP_ENV"))
}

func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod", "pre-production":
		return EnvStage
	default:
		return EnvDev
	}
}

// DefaultBackend: в dev читаемый текст, в остальных окружениях JSON через zap.
func (e Env) DefaultBackend() Backend {
	if e == EnvDev {
		return BackendStd
	}
	return BackendZap
}
