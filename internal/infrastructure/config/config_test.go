package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
hub:
  base_url: "http://hub.local"
  token: "abc123"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
collector:
  enabled: true
  url: "http://collector.example/guardar.php"
api:
  host: "0.0.0.0"
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Hub.BaseURL != "http://hub.local" {
		t.Errorf("Hub.BaseURL = %q, want %q", cfg.Hub.BaseURL, "http://hub.local")
	}

	if cfg.Collector.URL != "http://collector.example/guardar.php" {
		t.Errorf("Collector.URL = %q, want %q", cfg.Collector.URL, "http://collector.example/guardar.php")
	}

	// Defaults survive a partial file
	if cfg.Recorder.Capability != "onoff" {
		t.Errorf("Recorder.Capability = %q, want default %q", cfg.Recorder.Capability, "onoff")
	}
	if cfg.Collector.Table != "datos_semana" {
		t.Errorf("Collector.Table = %q, want default %q", cfg.Collector.Table, "datos_semana")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
collector:
  enabled: true
  url: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
site:
  id: "test-site"
hub:
  base_url: "http://hub.local"
database:
  path: "/tmp/test.db"
collector:
  enabled: false
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("OCCULOG_HUB_TOKEN", "env-token")
	t.Setenv("OCCULOG_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("OCCULOG_MQTT_PORT", "8883")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Token != "env-token" {
		t.Errorf("Hub.Token = %q, want env override %q", cfg.Hub.Token, "env-token")
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override %q", cfg.Database.Path, "/tmp/override.db")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want env override 8883", cfg.MQTT.Broker.Port)
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Collector.URL = "http://collector.example"
	cfg.Security.JWT.Secret = "short"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for short JWT secret, got nil")
	}
}

func TestValidate_SimulatorIntervals(t *testing.T) {
	cfg := defaultConfig()
	cfg.Collector.URL = "http://collector.example"
	cfg.Simulator.Enabled = true
	cfg.Simulator.MinInterval = 60
	cfg.Simulator.MaxInterval = 10

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for inverted simulator intervals, got nil")
	}
}
