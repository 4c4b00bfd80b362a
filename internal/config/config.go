package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment override, e.g. ALERTBRIDGE_DB_DSN.
const EnvPrefix = "ALERTBRIDGE_"

type Config struct {
	DB         DBConfig         `json:"db" envPrefix:"DB_"`
	Server     ServerConfig     `json:"server" envPrefix:"SERVER_"`
	Dispatch   DispatchConfig   `json:"dispatch" envPrefix:"DISPATCH_"`
	Telegram   TelegramConfig   `json:"telegram" envPrefix:"TELEGRAM_"`
	Connectors ConnectorsConfig `json:"connectors" envPrefix:"CONNECTORS_"`
	Logging    LoggingConfig    `json:"logging" envPrefix:"LOG_"`
}

type DBConfig struct {
	DSN string `json:"dsn" env:"DSN"`
}

type ServerConfig struct {
	AppPort      string `json:"app_port" env:"APP_PORT"`
	AlertPort    string `json:"alert_port" env:"ALERT_PORT"`
	WebhookToken string `json:"webhook_token" env:"WEBHOOK_TOKEN"`
	APIToken     string `json:"api_token" env:"API_TOKEN"`
}

type DispatchConfig struct {
	TimeoutSeconds       int   `json:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	ProbeTimeoutSeconds  int   `json:"probe_timeout_seconds" env:"PROBE_TIMEOUT_SECONDS"`
	ProbeIntervalSeconds int   `json:"probe_interval_seconds" env:"PROBE_INTERVAL_SECONDS"` // 0 отключает периодическую проверку
	ProbeConcurrency     int   `json:"probe_concurrency" env:"PROBE_CONCURRENCY"`
	MaxResponseBytes     int64 `json:"max_response_bytes" env:"MAX_RESPONSE_BYTES"`
}

func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DispatchConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c DispatchConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

type TelegramConfig struct {
	BotToken       string `json:"bot_token,omitempty" env:"BOT_TOKEN"`
	AlertChannelID int64  `json:"alert_channel_id" env:"ALERT_CHANNEL_ID"`
}

// ConnectorsConfig points at a directory of YAML connector definitions
// loaded on top of the built-in vendors.
type ConnectorsConfig struct {
	Dir   string `json:"dir" env:"DIR"`
	Watch bool   `json:"watch" env:"WATCH"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"` // json или text
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DB:     DBConfig{DSN: "alertbridge.db"},
		Server: ServerConfig{AppPort: "8080", AlertPort: "8081"},
		Dispatch: DispatchConfig{
			TimeoutSeconds:      30,
			ProbeTimeoutSeconds: 10,
			ProbeConcurrency:    4,
			MaxResponseBytes:    1 << 20,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the JSON file at path over the defaults, then applies .env and
// ALERTBRIDGE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := json.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required"))
	}
	if c.Server.AppPort == "" || c.Server.AlertPort == "" {
		errs = append(errs, errors.New("server.app_port and server.alert_port are required"))
	}
	if c.Dispatch.TimeoutSeconds <= 0 || c.Dispatch.ProbeTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("dispatch timeouts must be positive"))
	}
	if c.Dispatch.ProbeIntervalSeconds < 0 {
		errs = append(errs, errors.New("dispatch.probe_interval_seconds must not be negative"))
	}
	if c.Dispatch.MaxResponseBytes <= 0 {
		errs = append(errs, errors.New("dispatch.max_response_bytes must be positive"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
