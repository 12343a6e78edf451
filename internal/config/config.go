package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Editor  EditorConfig  `json:"editor"`
	Media   MediaConfig   `json:"media"`
	Capture CaptureConfig `json:"capture"`
	Events  EventsConfig  `json:"events"`
	Store   StoreConfig   `json:"store"`
}

// ServerConfig holds configuration for the HTTP service
type ServerConfig struct {
	Addr            string   `json:"addr"`
	LogLevel        string   `json:"log_level"`
	LogFormat       string   `json:"log_format"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// EditorConfig holds configuration for editing sessions
type EditorConfig struct {
	TargetWidth int      `json:"target_width"`
	HitRadius   float64  `json:"hit_radius"`
	SessionTTL  Duration `json:"session_ttl"`
}

// MediaConfig holds configuration for media loading and uploads
type MediaConfig struct {
	MaxUploadMB  int      `json:"max_upload_mb"`
	FetchTimeout Duration `json:"fetch_timeout"`
	UserAgent    string   `json:"user_agent"`
}

// CaptureConfig holds configuration for snapshot export
type CaptureConfig struct {
	SnapshotFormat  string `json:"snapshot_format"`
	SnapshotQuality int    `json:"snapshot_quality"`
	VideoTempDir    string `json:"video_temp_dir"`
}

// EventsConfig holds configuration for the alert feed
type EventsConfig struct {
	Mock        bool     `json:"mock"`
	MinInterval Duration `json:"min_interval"`
	MaxInterval Duration `json:"max_interval"`
	BufferSize  int      `json:"buffer_size"`
}

// StoreConfig holds configuration for application state
type StoreConfig struct {
	Path      string `json:"path"`
	MaxAlerts int    `json:"max_alerts"`
}

// Duration is a time.Duration written as a string ("30s") in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Editor: EditorConfig{
			TargetWidth: 600,
			HitRadius:   8,
			SessionTTL:  Duration(30 * time.Minute),
		},
		Media: MediaConfig{
			MaxUploadMB:  50,
			FetchTimeout: Duration(30 * time.Second),
			UserAgent:    "Zone-Annotator/1.0",
		},
		Capture: CaptureConfig{
			SnapshotFormat:  "jpeg",
			SnapshotQuality: 92,
		},
		Events: EventsConfig{
			Mock:        true,
			MinInterval: Duration(10 * time.Second),
			MaxInterval: Duration(30 * time.Second),
			BufferSize:  16,
		},
		Store: StoreConfig{
			Path:      "",
			MaxAlerts: 500,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Editor.TargetWidth < 1 {
		return fmt.Errorf("editor.target_width must be positive")
	}

	if c.Editor.HitRadius < 0 {
		return fmt.Errorf("editor.hit_radius cannot be negative")
	}

	if c.Media.MaxUploadMB < 1 {
		return fmt.Errorf("media.max_upload_mb must be positive")
	}

	if c.Capture.SnapshotQuality < 1 || c.Capture.SnapshotQuality > 100 {
		return fmt.Errorf("capture.snapshot_quality must be between 1 and 100")
	}

	switch c.Capture.SnapshotFormat {
	case "jpeg", "png", "webp":
	default:
		return fmt.Errorf("capture.snapshot_format must be jpeg, png or webp")
	}

	if c.Events.MinInterval <= 0 || c.Events.MaxInterval < c.Events.MinInterval {
		return fmt.Errorf("events intervals must be positive with min_interval <= max_interval")
	}

	if c.Events.BufferSize < 1 {
		return fmt.Errorf("events.buffer_size must be positive")
	}

	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Media.MaxUploadMB) * 1024 * 1024
}

// ApplyEnv overrides fields from ZA_* environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Addr = GetEnv("ZA_ADDR", c.Server.Addr)
	c.Server.LogLevel = GetEnv("ZA_LOG_LEVEL", c.Server.LogLevel)
	c.Server.LogFormat = GetEnv("ZA_LOG_FORMAT", c.Server.LogFormat)
	c.Editor.TargetWidth = GetEnvInt("ZA_TARGET_WIDTH", c.Editor.TargetWidth)
	c.Media.MaxUploadMB = GetEnvInt("ZA_MAX_UPLOAD_MB", c.Media.MaxUploadMB)
	c.Store.Path = GetEnv("ZA_STORE_PATH", c.Store.Path)
	c.Events.Mock = GetEnvBool("ZA_MOCK_EVENTS", c.Events.Mock)
}

// LoadEnv reads .env files into the environment. With no paths, ".env" is
// used. A missing file is returned as an error that callers may ignore.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool is GetEnv for booleans ("1", "true", "false", ...).
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "zone-annotator", "config.json")
}
