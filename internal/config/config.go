package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxEventLogCapacity matches the store's hard cap on grid event history.
const maxEventLogCapacity = 100

const (
	EnvBackendWSURL  = "GRID_DASHBOARD_BACKEND_WS_URL"
	EnvBackendAPIURL = "GRID_DASHBOARD_BACKEND_API_URL"
)

type Config struct {
	Port                  int               `yaml:"port"`
	LogLevel              string            `yaml:"log_level"`
	BackendWSURL          string            `yaml:"backend_ws_url"`
	BackendAPIURL         string            `yaml:"backend_api_url"`
	ReconnectIntervalMS   int               `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts  int               `yaml:"max_reconnect_attempts"`
	PingIntervalSeconds   int               `yaml:"ping_interval_seconds"`
	EventLogCapacity      int               `yaml:"event_log_capacity"`
	DefaultSymbols        []string          `yaml:"default_symbols"`
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds"`
	Sounds                map[string]string `yaml:"sounds"`
}

func defaults() Config {
	return Config{
		Port:                  8086,
		LogLevel:              "info",
		BackendWSURL:          "ws://localhost:8000/ws",
		BackendAPIURL:         "http://localhost:8000",
		ReconnectIntervalMS:   5000,
		MaxReconnectAttempts:  5,
		PingIntervalSeconds:   25,
		EventLogCapacity:      100,
		DefaultSymbols:        []string{"BTCUSDT", "ETHUSDT", "ADAUSDT"},
		RequestTimeoutSeconds: 15,
		Sounds: map[string]string{
			"grid-level-triggered": "./web/sounds/level.mp3",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error: the
// defaults plus environment overrides are used.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendWSURL)); v != "" {
		cfg.BackendWSURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendAPIURL)); v != "" {
		cfg.BackendAPIURL = v
	}
}

func (cfg *Config) validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("invalid port")
	}
	u, err := url.Parse(cfg.BackendWSURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.New("backend_ws_url must be a ws:// or wss:// url")
	}
	u, err = url.Parse(cfg.BackendAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("backend_api_url must be an http:// or https:// url")
	}
	if cfg.ReconnectIntervalMS < 100 {
		return errors.New("reconnect_interval_ms must be >=100")
	}
	if cfg.MaxReconnectAttempts < 1 {
		return errors.New("max_reconnect_attempts must be >=1")
	}
	if cfg.PingIntervalSeconds < 1 {
		return errors.New("ping_interval_seconds must be >=1")
	}
	if cfg.EventLogCapacity < 1 || cfg.EventLogCapacity > maxEventLogCapacity {
		return fmt.Errorf("event_log_capacity must be 1..%d", maxEventLogCapacity)
	}
	if cfg.RequestTimeoutSeconds < 1 {
		return errors.New("request_timeout_seconds must be >=1")
	}
	syms := make([]string, 0, len(cfg.DefaultSymbols))
	for _, s := range cfg.DefaultSymbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			syms = append(syms, s)
		}
	}
	cfg.DefaultSymbols = syms
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return nil
}

func (cfg Config) ReconnectInterval() time.Duration {
	return time.Duration(cfg.ReconnectIntervalMS) * time.Millisecond
}

func (cfg Config) PingInterval() time.Duration {
	return time.Duration(cfg.PingIntervalSeconds) * time.Second
}

func (cfg Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
