package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	YtDlpPath  string `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`

	EnableAuth   bool   `envconfig:"ENABLE_AUTH" default:"false"`
	AuthUsername string `envconfig:"AUTH_USERNAME" default:"admin"`
	AuthPassword string `envconfig:"AUTH_PASSWORD" default:"changeme"`

	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// KeepRecordsFor is how long a download record survives in memory after
	// reaching a terminal status, whether or not the client fetched it.
	KeepRecordsFor time.Duration `envconfig:"KEEP_RECORDS_FOR" default:"5m"`
	ReapInterval   time.Duration `envconfig:"REAP_INTERVAL" default:"1m"`

	DBPath          string        `envconfig:"DB_PATH" default:"mediafetch.db"`
	KeepHistoryFor  time.Duration `envconfig:"KEEP_HISTORY_FOR" default:"168h"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	// PrepareTimeout bounds one metadata fetch; zero leaves the subprocess
	// without a deadline.
	PrepareTimeout time.Duration `envconfig:"PREPARE_TIMEOUT" default:"0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"mediafetch"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8234"`
		ReadTimeout time.Duration `split_words:"true" default:"30s"`
		// WriteTimeout stays zero: streaming downloads and the event
		// stream hold a response open indefinitely.
		WriteTimeout    time.Duration `split_words:"true" default:"0"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
