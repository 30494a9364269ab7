package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 9090
log:
  log_level: "DEBUG"
  log_dir: "/tmp/logs"
  log_file: "test.log"
capture:
  max_duration: 15s
session:
  driver: memory
`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := NewLoader().WithDotEnv(false).WithPath(configFile).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected server port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.Capture.MaxDuration != 15*time.Second {
		t.Errorf("expected capture duration 15s, got %s", cfg.Capture.MaxDuration)
	}
	// untouched sections keep their defaults
	if cfg.Transcription.Model != "whisper-1" {
		t.Errorf("expected default transcription model, got %s", cfg.Transcription.Model)
	}
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Evaluation.Model != "gpt-4o-mini" {
		t.Errorf("unexpected evaluation model %s", cfg.Evaluation.Model)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("OPEN_AI_KEY", "sk-test")
	t.Setenv("VOICEQUIZ_SESSION_DRIVER", "MEMORY")

	cfg, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.Session.Driver != "memory" {
		t.Errorf("expected memory driver, got %s", cfg.Session.Driver)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "invalid server port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "zero capture duration", mutate: func(c *Config) { c.Capture.MaxDuration = 0 }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Session.Driver = "redis" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Session.Driver = "mongo" }, wantErr: true},
		{name: "auth without secret", mutate: func(c *Config) { c.Server.Auth.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := loader.validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
