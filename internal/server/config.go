package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string        `env:"FILES_DROP_ADDR" envDefault:":3008" validate:"required"`
	DataDir      string        `env:"FILES_DROP_DATA_DIR,required" validate:"required"`
	StagingDir   string        `env:"FILES_DROP_STAGING_DIR"`
	MaxSize      int64         `env:"FILES_DROP_MAX_SIZE" envDefault:"104857600" validate:"gt=0"`
	SuffixMode   string        `env:"FILES_DROP_SUFFIX_MODE" envDefault:"call" validate:"oneof=call process"`
	CORSOrigins  []string      `env:"FILES_DROP_CORS_ORIGINS" envDefault:"*" envSeparator:","`
	StaticDir    string        `env:"FILES_DROP_STATIC_DIR"`
	RateLimit    float64       `env:"FILES_DROP_RATE_LIMIT" envDefault:"0" validate:"gte=0"`
	RateBurst    int           `env:"FILES_DROP_RATE_BURST" envDefault:"20" validate:"gte=0"`
	ReadTimeout  time.Duration `env:"FILES_DROP_READ_TIMEOUT" envDefault:"5m" validate:"gte=0"`
	WriteTimeout time.Duration `env:"FILES_DROP_WRITE_TIMEOUT" envDefault:"5m" validate:"gte=0"`
	LogLevel     string        `env:"FILES_DROP_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat    string        `env:"FILES_DROP_LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`

	// StartedAt is the process start time; the process suffix mode uses it.
	StartedAt time.Time `env:"-"`
}

var validate = validator.New()

// LoadConfig reads the configuration from the environment, loading a .env
// file first when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills zero values, for configs built without env.Parse.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":3008"
	}
	if c.MaxSize == 0 {
		c.MaxSize = 100 << 20
	}
	if c.SuffixMode == "" {
		c.SuffixMode = "call"
	}
	c.SuffixMode = strings.ToLower(c.SuffixMode)
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"*"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("config: %s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
		}
		return fmt.Errorf("config: %w", err)
	}

	staging, err := filepath.Abs(c.Staging())
	if err != nil {
		return fmt.Errorf("config: staging dir: %w", err)
	}
	root, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: data dir: %w", err)
	}
	rel, err := filepath.Rel(root, staging)
	outside := err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
	if !outside {
		return fmt.Errorf("config: staging dir %q must not be inside data dir %q", staging, root)
	}

	return nil
}

// Staging returns the directory uploads are staged in before they are
// moved into the data dir. It defaults to a sibling of the data dir so the
// move stays on one filesystem.
func (c *Config) Staging() string {
	if c.StagingDir != "" {
		return c.StagingDir
	}
	return filepath.Clean(c.DataDir) + ".staging"
}

// NewLogger builds the process logger from the config.
func NewLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
