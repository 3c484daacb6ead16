package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/cwrk-planet/chatsync/pkg/logger"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv(logger.EnvVar, "")
	t.Setenv("APP_ENV", "")
	if got := logger.DetectEnv(); got != logger.EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}

	t.Setenv("APP_ENV", "production")
	if got := logger.DetectEnv(); got != logger.EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logger.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "chatsync-test",
		Version: "v0.0.1",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	slog.Info("hello chat")

	out := buf.String()
	if strings.Contains(out, "{") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	if !strings.Contains(out, "hello chat") {
		t.Fatalf("message missing: %s", out)
	}
	if !strings.Contains(out, "service=chatsync-test") {
		t.Fatalf("service attr missing: %s", out)
	}
	if !strings.Contains(out, "env=dev") {
		t.Fatalf("env attr missing: %s", out)
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "chatsync-test",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})
	slog.Info("connected", slog.String("room", "42"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "connected" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "chatsync-test" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("attrs missing: service=%v env=%v version=%v", m["service"], m["env"], m["version"])
	}
	if m["level"] != "INFO" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["room"] != "42" {
		t.Fatalf("custom field missing: %v", m["room"])
	}
}

func TestComponent_AddsAttr(t *testing.T) {
	var buf bytes.Buffer
	base := logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Output: &buf})

	logger.Component(base, "transport").Info("dial")

	if !strings.Contains(buf.String(), "component=transport") {
		t.Fatalf("component attr missing: %s", buf.String())
	}
}

func TestAttrsFromCtx(t *testing.T) {
	if attrs := logger.AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected no attrs without span, got %v", attrs)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	attrs := logger.AttrsFromCtx(ctx)
	if len(attrs) != 2 {
		t.Fatalf("expected trace_id and span_id, got %v", attrs)
	}
	if attrs[0].Key != "trace_id" || attrs[0].Value.String() != span.SpanContext().TraceID().String() {
		t.Fatalf("trace_id mismatch: %v", attrs[0])
	}
}

func TestDetectEnv_ClientVarWins(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv(logger.EnvVar, "stage")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("expected %s to win, got %q", logger.EnvVar, got)
	}

	t.Setenv(logger.EnvVar, "  ")
	if got := logger.DetectEnv(); got != logger.EnvProd {
		t.Fatalf("blank %s should fall back to APP_ENV, got %q", logger.EnvVar, got)
	}
}

func TestEnv_DefaultBackend(t *testing.T) {
	if b := logger.EnvDev.DefaultBackend(); b != logger.BackendStd {
		t.Fatalf("dev backend = %s", b)
	}
	if b := logger.EnvProd.DefaultBackend(); b != logger.BackendZap {
		t.Fatalf("prod backend = %s", b)
	}
}

func TestInit_InstanceIDCarriesPid(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Output: &buf})
	slog.Info("boot")

	if !strings.Contains(buf.String(), "-"+strconv.Itoa(os.Getpid())+"-") {
		t.Fatalf("instance_id without pid: %s", buf.String())
	}
	if strings.Contains(buf.String(), "version=") {
		t.Fatalf("empty version should be omitted: %s", buf.String())
	}
}

func TestSession_AddsUserID(t *testing.T) {
	var buf bytes.Buffer
	base := logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Output: &buf})

	logger.Component(logger.Session(base, 42), "store").Info("open")

	out := buf.String()
	if !strings.Contains(out, "user_id=42") || !strings.Contains(out, "component=store") {
		t.Fatalf("session attrs missing: %s", out)
	}
}

func TestWithAttrs_CarriedAlongsideTrace(t *testing.T) {
	ctx := logger.WithAttrs(context.Background(), slog.String("op", "poll"))
	ctx = logger.WithAttrs(ctx, slog.Int64("room_id", 5))
	if same := logger.WithAttrs(ctx); same != ctx {
		t.Fatalf("empty WithAttrs should return the same context")
	}

	attrs := logger.AttrsFromCtx(ctx)
	if len(attrs) != 2 || attrs[0].Key != "op" || attrs[1].Key != "room_id" || attrs[1].Value.Int64() != 5 {
		t.Fatalf("attrs = %v", attrs)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(ctx, "poll")
	defer span.End()

	attrs = logger.AttrsFromCtx(ctx)
	if len(attrs) != 4 || attrs[2].Key != "trace_id" || attrs[3].Key != "span_id" {
		t.Fatalf("attrs with span = %v", attrs)
	}
}
