package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
haven:
  email: user@example.com
  password: hunter2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Haven.Timeout.Duration() != 30*time.Second {
		t.Errorf("haven timeout default = %s", cfg.Haven.Timeout.Duration())
	}
	if cfg.Log.GetLevel() != "info" {
		t.Errorf("log level default = %q", cfg.Log.GetLevel())
	}
	if cfg.Database.Path != "./havend.sqlite" {
		t.Errorf("database path default = %q", cfg.Database.Path)
	}
	if cfg.API.Host != "127.0.0.1" || cfg.API.Port != 8686 {
		t.Errorf("api defaults = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.Poll.Interval.Duration() != time.Minute {
		t.Errorf("poll interval default = %s", cfg.Poll.Interval.Duration())
	}
	if cfg.ShutdownTimeout.Duration() != 5*time.Second {
		t.Errorf("shutdown timeout default = %s", cfg.ShutdownTimeout.Duration())
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
haven:
  email: user@example.com
  password: hunter2
  auth_base: https://auth.example.com/api
  prod_base: https://prod.example.com/api
  timeout: 10s
database:
  path: /var/lib/havend/state.sqlite
log:
  level: debug
  json: true
api:
  enabled: true
  host: 0.0.0.0
  port: 9000
poll:
  enabled: true
  interval: 30s
shutdown_timeout: 2s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Haven.AuthBase != "https://auth.example.com/api" {
		t.Errorf("auth_base = %q", cfg.Haven.AuthBase)
	}
	if cfg.Haven.Timeout.Duration() != 10*time.Second {
		t.Errorf("timeout = %s", cfg.Haven.Timeout.Duration())
	}
	if !cfg.API.Enabled || cfg.API.Port != 9000 {
		t.Errorf("api = %+v", cfg.API)
	}
	if !cfg.Poll.Enabled || cfg.Poll.Interval.Duration() != 30*time.Second {
		t.Errorf("poll = %+v", cfg.Poll)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("HAVEN_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, `
haven:
  email: user@example.com
  password: ${HAVEN_TEST_PASSWORD}
  auth_base: ${HAVEN_TEST_MISSING:https://fallback.example.com/api}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Haven.Password != "s3cret" {
		t.Errorf("env var not expanded: %q", cfg.Haven.Password)
	}
	if cfg.Haven.AuthBase != "https://fallback.example.com/api" {
		t.Errorf("default value not applied: %q", cfg.Haven.AuthBase)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing_email",
			content: "haven:\n  password: hunter2\n",
			wantErr: "haven.email",
		},
		{
			name:    "missing_password",
			content: "haven:\n  email: user@example.com\n",
			wantErr: "haven.password",
		},
		{
			name:    "poll_interval_too_short",
			content: "haven:\n  email: user@example.com\n  password: hunter2\npoll:\n  interval: 1s\n",
			wantErr: "poll.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
