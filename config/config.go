package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvToken = "CHATSYNC_TOKEN"

type Endpoint struct {
	BaseURL string `yaml:"baseURL"` // https://api.example.com
	WSURL   string `yaml:"wsURL"`   // если пусто: baseURL со схемой ws(s) и путём /ws
}

type Auth struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"tokenFile"`
}

type Transport struct {
	ConnectTimeout time.Duration `yaml:"connectTimeout"` // 10s
	WriteTimeout   time.Duration `yaml:"writeTimeout"`   // 10s
	ReadTimeout    time.Duration `yaml:"readTimeout"`    // 60s
	Keepalive      time.Duration `yaml:"keepalive"`      // 25s
	BackoffBase    time.Duration `yaml:"backoffBase"`    // 1s
	MaxAttempts    int           `yaml:"maxAttempts"`    // 5
}

type REST struct {
	Timeout time.Duration `yaml:"timeout"` // 10s
}

type Chat struct {
	PageSize         int           `yaml:"pageSize"`         // 20
	DupWindow        time.Duration `yaml:"dupWindow"`        // 1s
	PollInterval     time.Duration `yaml:"pollInterval"`     // 10s
	TypingIdle       time.Duration `yaml:"typingIdle"`       // 5s
	TypingThrottle   time.Duration `yaml:"typingThrottle"`   // 2s
	MaxContentLength int           `yaml:"maxContentLength"` // 1000
}

type HTTP struct {
	Addr string `yaml:"addr"` // пусто: инспекционный сервер выключен
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chatsync
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	Endpoint  Endpoint  `yaml:"endpoint"`
	Auth      Auth      `yaml:"auth"`
	Transport Transport `yaml:"transport"`
	REST      REST      `yaml:"rest"`
	Chat      Chat      `yaml:"chat"`
	HTTP      HTTP      `yaml:"http"`
	Logging   Logging   `yaml:"logging"`
}

func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = filepath.Join("config", "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse разбирает YAML, проставляет дефолты и валидирует.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
		cfg.Auth.Token = tok
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint.WSURL == "" && c.Endpoint.BaseURL != "" {
		c.Endpoint.WSURL = deriveWSURL(c.Endpoint.BaseURL)
	}

	t := &c.Transport
	if t.ConnectTimeout <= 0 {
		t.ConnectTimeout = 10 * time.Second
	}
	if t.WriteTimeout <= 0 {
		t.WriteTimeout = 10 * time.Second
	}
	if t.ReadTimeout <= 0 {
		t.ReadTimeout = 60 * time.Second
	}
	if t.Keepalive <= 0 {
		t.Keepalive = 25 * time.Second
	}
	if t.BackoffBase <= 0 {
		t.BackoffBase = time.Second
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 5
	}

	if c.REST.Timeout <= 0 {
		c.REST.Timeout = 10 * time.Second
	}

	ch := &c.Chat
	if ch.PageSize <= 0 {
		ch.PageSize = 20
	}
	if ch.DupWindow <= 0 {
		ch.DupWindow = time.Second
	}
	if ch.PollInterval <= 0 {
		ch.PollInterval = 10 * time.Second
	}
	if ch.TypingIdle <= 0 {
		ch.TypingIdle = 5 * time.Second
	}
	if ch.TypingThrottle <= 0 {
		ch.TypingThrottle = 2 * time.Second
	}
	if ch.MaxContentLength <= 0 {
		ch.MaxContentLength = 1000
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "chatsync"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
}

func (c *Config) validate() error {
	if c.Endpoint.BaseURL == "" {
		return errors.New("endpoint.baseURL is required")
	}
	u, err := url.Parse(c.Endpoint.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint.baseURL must be an absolute http(s) url: %q", c.Endpoint.BaseURL)
	}
	w, err := url.Parse(c.Endpoint.WSURL)
	if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
		return fmt.Errorf("endpoint.wsURL must be a ws(s) url: %q", c.Endpoint.WSURL)
	}
	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return errors.New("auth.token or auth.tokenFile is required")
	}
	if c.Transport.ConnectTimeout > c.Transport.ReadTimeout {
		return errors.New("transport.connectTimeout must not exceed transport.readTimeout")
	}
	return nil
}

func deriveWSURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
