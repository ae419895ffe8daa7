// ABOUTME: Configuration for sync behavior and Drive backend settings
// ABOUTME: Persists JSON config at the XDG data path with generated device ID
package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/oklog/ulid/v2"
)

const (
	// AppName is the application name for XDG paths.
	AppName = "trendscope"

	// ConfigFileName is where local config is stored.
	ConfigFileName = "config.json"
)

// Defaults for the sync policy knobs.
const (
	DefaultBatchSize        = 100
	DefaultMaxAttempts      = 3
	DefaultRetryBaseDelay   = time.Second
	DefaultBatchPause       = 500 * time.Millisecond
	DefaultAutoSyncInterval = time.Minute
)

// Config holds sync policy and Drive backend settings.
type Config struct {
	// BatchSize bounds how many records one remote upsert call carries.
	BatchSize int `json:"batch_size,omitempty"`

	// MaxAttempts bounds retries per batch before the failure propagates.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration `json:"retry_base_delay,omitempty"`

	// BatchPause is the fixed pause between consecutive batches.
	BatchPause time.Duration `json:"batch_pause,omitempty"`

	// AutoSyncInterval drives the periodic background sync.
	AutoSyncInterval time.Duration `json:"auto_sync_interval,omitempty"`

	// FolderName overrides the Drive folder holding the partition files.
	FolderName string `json:"folder_name,omitempty"`

	// DeviceID identifies this installation in remote write provenance.
	DeviceID string `json:"device_id,omitempty"`
}

// DefaultConfig returns a new config with sensible defaults. The device ID
// is left empty until first save.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:        DefaultBatchSize,
		MaxAttempts:      DefaultMaxAttempts,
		RetryBaseDelay:   DefaultRetryBaseDelay,
		BatchPause:       DefaultBatchPause,
		AutoSyncInterval: DefaultAutoSyncInterval,
	}
}

func configPath() (string, error) {
	dataDir := filepath.Join(xdg.DataHome, AppName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// DataDir returns the XDG data directory for the app.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Load reads config from disk, filling defaults for missing fields. A
// missing or unreadable file yields defaults. The device ID is generated and
// persisted on first load.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return DefaultConfig(), nil //nolint:nilerr // defaults when the path is unusable
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			cfg = DefaultConfig()
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = DefaultBatchPause
	}
	if cfg.AutoSyncInterval <= 0 {
		cfg.AutoSyncInterval = DefaultAutoSyncInterval
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = GenerateDeviceID()
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to persist device ID: %w", err)
		}
	}

	return cfg, nil
}

// Save persists the config to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// GenerateDeviceID generates a new ULID identifying this installation.
func GenerateDeviceID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
