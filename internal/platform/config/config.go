package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Session       SessionConfig       `yaml:"session"`
	Image         ImageConfig         `yaml:"image"`
}

type ServerConfig struct {
	IP   string     `yaml:"ip"`
	Port int        `yaml:"port"`
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls bearer-token verification. Tokens are issued elsewhere;
// this server only checks the signature and reads the subject.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level      string `yaml:"log_level"`
	Dir        string `yaml:"log_dir"`
	File       string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"url"`
}

type CaptureConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	MaxBytes    int64         `yaml:"max_bytes"`
	MimeType    string        `yaml:"mime_type"`
}

type TranscriptionConfig struct {
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	Temperature   float32 `yaml:"temperature"`
	MaxBytes      int64   `yaml:"max_bytes"`
	MinChars      int     `yaml:"min_chars"`
	RatePerMinute int     `yaml:"rate_per_minute"`
}

type EvaluationConfig struct {
	Model             string        `yaml:"model"`
	VisionModel       string        `yaml:"vision_model"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	RatePerMinute     int           `yaml:"rate_per_minute"`
	EvaluatingTimeout time.Duration `yaml:"evaluating_timeout"`
}

type SessionConfig struct {
	Driver string             `yaml:"driver"`
	SQLite SessionSQLiteStore `yaml:"sqlite"`
	Redis  SessionRedisStore  `yaml:"redis"`
}

type SessionSQLiteStore struct {
	DSN string `yaml:"dsn"`
}

type SessionRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type ImageConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	MaxWidth       int      `yaml:"max_width"`
	MaxHeight      int      `yaml:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats"`
}
