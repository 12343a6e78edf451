package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.MaxUploadBytes() != 50*1024*1024 {
		t.Errorf("Expected 50MB upload limit, got %d", cfg.MaxUploadBytes())
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Editor.TargetWidth = 800
	cfg.Events.MinInterval = Duration(5 * time.Second)

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Editor.TargetWidth != 800 {
		t.Errorf("Expected target width 800, got %d", loaded.Editor.TargetWidth)
	}
	if loaded.Events.MinInterval.Std() != 5*time.Second {
		t.Errorf("Expected 5s interval, got %v", loaded.Events.MinInterval.Std())
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"addr":":9000"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Editor.TargetWidth != 600 {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"quality":  func(c *Config) { c.Capture.SnapshotQuality = 0 },
		"format":   func(c *Config) { c.Capture.SnapshotFormat = "gif" },
		"width":    func(c *Config) { c.Editor.TargetWidth = 0 },
		"upload":   func(c *Config) { c.Media.MaxUploadMB = 0 },
		"interval": func(c *Config) { c.Events.MaxInterval = Duration(time.Second) },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ZA_ADDR", ":7000")
	t.Setenv("ZA_TARGET_WIDTH", "1024")
	t.Setenv("ZA_MOCK_EVENTS", "false")
	t.Setenv("ZA_MAX_UPLOAD_MB", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Server.Addr != ":7000" || cfg.Editor.TargetWidth != 1024 || cfg.Events.Mock {
		t.Errorf("Env overrides not applied: %+v", cfg)
	}
	if cfg.Media.MaxUploadMB != 50 {
		t.Errorf("Expected invalid int to keep default, got %d", cfg.Media.MaxUploadMB)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("ZA_TEST_LOG_LEVEL=debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ZA_TEST_LOG_LEVEL") })

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if got := GetEnv("ZA_TEST_LOG_LEVEL", "info"); got != "debug" {
		t.Errorf("Expected debug, got %s", got)
	}
}
