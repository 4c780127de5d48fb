// Package config loads runtime settings from the environment and holds the
// forum's fixed limits.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "query"

// Config is the process configuration.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"JWT_ISSUER" default:"query-forum"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"72h"`

	// HostelDirectoryFile overrides the embedded hostel directory.
	HostelDirectoryFile string `envconfig:"HOSTEL_DIRECTORY_FILE"`

	ImageStore         string `envconfig:"IMAGE_STORE" default:"local"`
	ImageDir           string `envconfig:"IMAGE_DIR" default:"./uploads"`
	ImageBaseURL       string `envconfig:"IMAGE_BASE_URL" default:"http://localhost:8080/uploads"`
	GCSBucket          string `envconfig:"GCS_BUCKET"`
	GCSCredentialsFile string `envconfig:"GCS_CREDENTIALS_FILE"`
	GCSPublicBaseURL   string `envconfig:"GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`

	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `envconfig:"TELEGRAM_ADMIN_CHAT_ID"`
	NotifyLanguage      string `envconfig:"NOTIFY_LANGUAGE" default:"en"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"DEVELOPMENT" default:"false"`

	VoteCacheTTL time.Duration `envconfig:"VOTE_CACHE_TTL" default:"10m"`
}

// Load reads an optional .env file and then the QUERY_* environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field settings envconfig cannot express.
func (c *Config) Validate() error {
	switch c.ImageStore {
	case "local":
		if c.ImageDir == "" {
			return errors.New("QUERY_IMAGE_DIR is required for the local image store")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("QUERY_GCS_BUCKET is required for the gcs image store")
		}
	default:
		return fmt.Errorf("invalid image store %q (must be 'local' or 'gcs')", c.ImageStore)
	}
	if c.TelegramBotToken != "" && c.TelegramAdminChatID == 0 {
		return errors.New("QUERY_TELEGRAM_ADMIN_CHAT_ID is required when a bot token is set")
	}
	if c.VoteCacheTTL <= 0 {
		c.VoteCacheTTL = DefaultVoteCacheTTL
	}
	return nil
}

// NotificationsEnabled reports whether the Telegram notifier should run.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAdminChatID != 0
}
