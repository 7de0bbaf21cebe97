// Package config loads process settings from the environment and keeps the
// accounts snapshot (which chat accounts to connect) in a JSON file.
// Settings have defaults so the binary runs locally with no setup; accounts
// start out as a template of placeholders that adapters refuse to use.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/onnwee/chatter/chat"
)

// Accounts backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Settings struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`

	AccountsFile    string `env:"ACCOUNTS_FILE"    envDefault:"config/chatter.json"`
	AccountsBackend string `env:"ACCOUNTS_BACKEND" envDefault:"file"`
	DBDsn           string `env:"DB_DSN"`
	// Base64 32-byte key; seals credentials in the postgres backend.
	EncryptionKey string `env:"ACCOUNTS_ENCRYPTION_KEY"`
	WatchAccounts   bool   `env:"WATCH_ACCOUNTS"   envDefault:"true"`

	PollInterval   time.Duration `env:"POLL_INTERVAL"   envDefault:"10s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	PageSize       int           `env:"PAGE_SIZE"       envDefault:"200"`

	AdminToken    string `env:"ADMIN_TOKEN"`
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED"         envDefault:"true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS_PER_IP" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"          envDefault:"1m"`

	// Empty means any origin may read the API.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	YouTubeEndpoint string `env:"YOUTUBE_ENDPOINT"`
	KickAPIURL      string `env:"KICK_API_URL"`
	KickPusherURL   string `env:"KICK_PUSHER_URL"`
	TwitchIRCAddr   string `env:"TWITCH_IRC_ADDR"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"0.1"`

	EnablePprof bool   `env:"ENABLE_PPROF"`
	PprofAddr   string `env:"PPROF_ADDR" envDefault:"localhost:6060"`

	// How often the postgres backend is checked for account changes.
	StorePollInterval time.Duration `env:"ACCOUNTS_POLL_INTERVAL" envDefault:"5s"`
}

// Load reads settings from the environment and validates them.
func Load() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) normalize() {
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	s.AccountsBackend = strings.ToLower(strings.TrimSpace(s.AccountsBackend))
}

// Validate checks value ranges and cross-field requirements.
func (s *Settings) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.HTTPAddr, validation.Required),
		validation.Field(&s.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&s.LogFormat, validation.In("text", "json")),
		validation.Field(&s.AccountsBackend, validation.Required, validation.In(BackendFile, BackendPostgres)),
		validation.Field(&s.AccountsFile, validation.Required.When(s.AccountsBackend == BackendFile)),
		validation.Field(&s.DBDsn, validation.Required.When(s.AccountsBackend == BackendPostgres).Error("is required when ACCOUNTS_BACKEND=postgres")),
		validation.Field(&s.EncryptionKey, is.Base64),
		validation.Field(&s.PollInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&s.RequestTimeout, validation.Required, validation.Min(100*time.Millisecond), validation.Max(2*time.Minute)),
		validation.Field(&s.PageSize, validation.Required, validation.Min(1), validation.Max(2000)),
		validation.Field(&s.RateLimitRequests, validation.When(s.RateLimitEnabled, validation.Required, validation.Min(1))),
		validation.Field(&s.RateLimitWindow, validation.When(s.RateLimitEnabled, validation.Required, validation.Min(time.Second))),
		validation.Field(&s.StorePollInterval, validation.Min(time.Second)),
		validation.Field(&s.TraceSampleRatio, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.AdminPassword, validation.Required.When(s.AdminUsername != "").Error("is required when ADMIN_USERNAME is set")),
	)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Deps returns the settings adapter factories need.
func (s *Settings) Deps() chat.Deps {
	return chat.Deps{
		RequestTimeout: s.RequestTimeout,
		PollInterval:   s.PollInterval,
		PageSize:       s.PageSize,
	}
}

// SlogLevel maps LogLevel to a slog.Level.
func (s *Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AdminConfigured reports whether the admin endpoints have any credential.
func (s *Settings) AdminConfigured() bool {
	return s.AdminToken != "" || (s.AdminUsername != "" && s.AdminPassword != "")
}
