package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv(EnvToken, "")
	cfg, err := Parse([]byte(`
endpoint:
  baseURL: "https://api.example.com/v1/"
auth:
  token: "abc"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Endpoint.WSURL != "wss://api.example.com/v1/ws" {
		t.Errorf("WSURL = %q, want wss://api.example.com/v1/ws", cfg.Endpoint.WSURL)
	}
	if cfg.REST.Timeout != 10*time.Second {
		t.Errorf("REST.Timeout = %v, want 10s", cfg.REST.Timeout)
	}
	if cfg.Transport.BackoffBase != time.Second || cfg.Transport.MaxAttempts != 5 {
		t.Errorf("backoff = %v/%d, want 1s/5", cfg.Transport.BackoffBase, cfg.Transport.MaxAttempts)
	}
	if cfg.Chat.PageSize != 20 || cfg.Chat.DupWindow != time.Second || cfg.Chat.PollInterval != 10*time.Second {
		t.Errorf("chat defaults = %+v", cfg.Chat)
	}
	if cfg.Chat.TypingIdle != 5*time.Second {
		t.Errorf("TypingIdle = %v, want 5s", cfg.Chat.TypingIdle)
	}
	if cfg.Logging.Service != "chatsync" || cfg.Logging.Backend != "std" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv(EnvToken, "from-env")
	cfg, err := Parse([]byte(`
endpoint:
  baseURL: "http://localhost:8080"
  wsURL: "ws://localhost:9090/socket"
auth:
  token: "from-file"
chat:
  dupWindow: 1500ms
  pollInterval: 3s
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("Token = %q, want from-env", cfg.Auth.Token)
	}
	if cfg.Endpoint.WSURL != "ws://localhost:9090/socket" {
		t.Errorf("WSURL = %q", cfg.Endpoint.WSURL)
	}
	if cfg.Chat.DupWindow != 1500*time.Millisecond || cfg.Chat.PollInterval != 3*time.Second {
		t.Errorf("chat = %+v", cfg.Chat)
	}
}

func TestParse_Validation(t *testing.T) {
	t.Setenv(EnvToken, "")
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing base", `auth: {token: x}`, "baseURL is required"},
		{"relative base", "endpoint: {baseURL: \"/api\"}\nauth: {token: x}", "absolute http(s) url"},
		{"bad ws", "endpoint: {baseURL: \"http://h\", wsURL: \"http://h/ws\"}\nauth: {token: x}", "ws(s) url"},
		{"no credential", `endpoint: {baseURL: "http://h"}`, "auth.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_FromConfigPath(t *testing.T) {
	t.Setenv(EnvToken, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("endpoint: {baseURL: \"http://h\"}\nauth: {tokenFile: \"/tmp/t\"}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoint.WSURL != "ws://h/ws" {
		t.Errorf("WSURL = %q, want ws://h/ws", cfg.Endpoint.WSURL)
	}
}
