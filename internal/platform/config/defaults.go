package config

import "time"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level:      "INFO",
			Dir:        "data/logs",
			File:       "server.log",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
		Capture: CaptureConfig{
			MaxDuration: 20 * time.Second,
			MaxBytes:    25 << 20,
			MimeType:    "audio/webm",
		},
		Transcription: TranscriptionConfig{
			Model:         "whisper-1",
			Language:      "en",
			Temperature:   0.2,
			MaxBytes:      25 << 20,
			MinChars:      3,
			RatePerMinute: 50,
		},
		Evaluation: EvaluationConfig{
			Model:             "gpt-4o-mini",
			VisionModel:       "gpt-4o-mini",
			Temperature:       0.3,
			MaxTokens:         200,
			RatePerMinute:     60,
			EvaluatingTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Driver: "sqlite",
			SQLite: SessionSQLiteStore{DSN: "data/voicequiz.db"},
			Redis:  SessionRedisStore{Prefix: "voicequiz:session:"},
		},
		Image: ImageConfig{
			MaxFileSize:    5 << 20,
			MaxWidth:       4096,
			MaxHeight:      4096,
			AllowedFormats: []string{"jpeg", "png", "gif", "webp"},
		},
	}
}
