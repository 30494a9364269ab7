package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

// Loader reads the YAML config file on top of DefaultConfig and applies
// environment overrides.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader for VOICEQUIZ_CONFIG or ./config.yaml.
func NewLoader() *Loader {
	path := os.Getenv("VOICEQUIZ_CONFIG")
	if path == "" {
		path = defaultPath
	}
	return &Loader{useDotEnv: true, path: path}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Path reports the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load returns the merged configuration. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		// .env is optional; system environment is used otherwise
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	raw, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", l.path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}

	applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := firstEnv("OPENAI_API_KEY", "OPEN_AI_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("VOICEQUIZ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VOICEQUIZ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VOICEQUIZ_SESSION_DRIVER"); v != "" {
		cfg.Session.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("VOICEQUIZ_REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
	if v := os.Getenv("VOICEQUIZ_JWT_SECRET"); v != "" {
		cfg.Server.Auth.JWTSecret = v
		cfg.Server.Auth.Enabled = true
	}
	if v := os.Getenv("VOICEQUIZ_CAPTURE_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Capture.MaxDuration = d
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Capture.MaxDuration <= 0 {
		return fmt.Errorf("capture.max_duration must be positive")
	}
	if cfg.Transcription.MaxBytes <= 0 {
		return fmt.Errorf("transcription.max_bytes must be positive")
	}
	if cfg.Evaluation.Temperature < 0 || cfg.Evaluation.Temperature > 2 {
		return fmt.Errorf("evaluation.temperature must be between 0 and 2")
	}
	if cfg.Evaluation.EvaluatingTimeout < 0 {
		return fmt.Errorf("evaluation.evaluating_timeout must not be negative")
	}
	switch cfg.Session.Driver {
	case "memory", "sqlite":
	case "redis":
		if cfg.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported session driver: %s", cfg.Session.Driver)
	}
	if cfg.Server.Auth.Enabled && cfg.Server.Auth.JWTSecret == "" {
		return fmt.Errorf("server.auth.jwt_secret is required when auth is enabled")
	}
	return nil
}
