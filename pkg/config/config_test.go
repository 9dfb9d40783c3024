package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":7440" {
		t.Errorf("server address = %q, want :7440", cfg.Server.Address)
	}
	if cfg.Dispatch.Timeout.Std() != 30*time.Second {
		t.Errorf("dispatch timeout = %v, want 30s", cfg.Dispatch.Timeout)
	}
	if cfg.Events.MinInterval.Std() != 33*time.Millisecond {
		t.Errorf("events min interval = %v, want 33ms", cfg.Events.MinInterval)
	}
	if !cfg.HTTP.Enabled {
		t.Error("http should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "127.0.0.1:9000"
  id: "bench-rig"
http:
  enabled: false
dispatch:
  timeout: 5s
events:
  min_interval: 100ms
  queue_capacity: 64
persistence:
  state_file: /tmp/state.json
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
	if cfg.Server.ID != "bench-rig" {
		t.Errorf("server id = %q", cfg.Server.ID)
	}
	if cfg.HTTP.Enabled {
		t.Error("http should be disabled")
	}
	if cfg.Dispatch.Timeout.Std() != 5*time.Second {
		t.Errorf("dispatch timeout = %v", cfg.Dispatch.Timeout)
	}
	if cfg.Events.MinInterval.Std() != 100*time.Millisecond {
		t.Errorf("min interval = %v", cfg.Events.MinInterval)
	}
	if cfg.Events.QueueCapacity != 64 {
		t.Errorf("queue capacity = %d", cfg.Events.QueueCapacity)
	}
	if cfg.Persistence.StateFile != "/tmp/state.json" {
		t.Errorf("state file = %q", cfg.Persistence.StateFile)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		t.Fatalf("SlogLevel failed: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level)
	}

	// Untouched sections keep their defaults
	if cfg.Dispatch.QueueSize != 32 {
		t.Errorf("queue size = %d, want default 32", cfg.Dispatch.QueueSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of missing file succeeded, want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty address", func(c *Config) { c.Server.Address = "" }, true},
		{"http enabled without address", func(c *Config) { c.HTTP.Address = "" }, true},
		{"cert without key", func(c *Config) { c.Server.TLS.CertFile = "cert.pem" }, true},
		{"cert with key", func(c *Config) {
			c.Server.TLS.CertFile = "cert.pem"
			c.Server.TLS.KeyFile = "key.pem"
		}, false},
		{"negative timeout", func(c *Config) { c.Dispatch.Timeout = Duration(-time.Second) }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTLSEnabled(t *testing.T) {
	var tls TLSConfig
	if tls.Enabled() {
		t.Error("empty TLS config reports enabled")
	}
	tls.CertFile = "cert.pem"
	if !tls.Enabled() {
		t.Error("TLS config with cert reports disabled")
	}
}
