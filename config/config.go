package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"nodetrace/radio"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "nodetrace"
	// DataDirEnv overrides the resolved data directory.
	DataDirEnv = "NODETRACE_DATA_DIR"

	DefaultMode                 = string(radio.ModeScanAndAdvertise)
	DefaultSweepIntervalMS      = 1000
	DefaultOutOfRangeTimeoutMS  = 12000
	DefaultRiskCheckIntervalMS  = int64(6 * time.Hour / time.Millisecond)
	DefaultContactRetentionDays = 14
	DefaultEventsListenAddr     = "127.0.0.1:8765"
	DefaultSimulatedRSSI        = -60

	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// Location is an optional static position attached to recorded contacts.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DeviceConfig contains persistent local-device and engine settings.
type DeviceConfig struct {
	DeviceID             string    `json:"device_id"`
	DeviceName           string    `json:"device_name"`
	Mode                 string    `json:"mode"`
	SweepIntervalMS      int64     `json:"sweep_interval_ms"`
	OutOfRangeTimeoutMS  int64     `json:"out_of_range_timeout_ms"`
	ExposureURL          string    `json:"exposure_url,omitempty"`
	ExposureFile         string    `json:"exposure_file,omitempty"`
	RiskCheckIntervalMS  int64     `json:"risk_check_interval_ms"`
	ContactRetentionDays int       `json:"contact_retention_days"`
	EventsListenAddr     string    `json:"events_listen_addr"`
	Location             *Location `json:"location,omitempty"`
	SimulatedRSSI        int       `json:"simulated_rssi"`
}

// SweepInterval returns the sweep period.
func (c *DeviceConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// OutOfRangeTimeout returns the silence after which a peer is lost.
func (c *DeviceConfig) OutOfRangeTimeout() time.Duration {
	return time.Duration(c.OutOfRangeTimeoutMS) * time.Millisecond
}

// RiskCheckInterval returns the period between exposure checks.
func (c *DeviceConfig) RiskCheckInterval() time.Duration {
	return time.Duration(c.RiskCheckIntervalMS) * time.Millisecond
}

// Retention returns how long contacts are kept.
func (c *DeviceConfig) Retention() time.Duration {
	return time.Duration(c.ContactRetentionDays) * 24 * time.Hour
}

// RadioMode parses the configured mode.
func (c *DeviceConfig) RadioMode() (radio.Mode, error) {
	return radio.ParseMode(c.Mode)
}

// Validate rejects settings the engine cannot run with.
func (c *DeviceConfig) Validate() error {
	if _, err := c.RadioMode(); err != nil {
		return err
	}
	if c.ExposureURL != "" && c.ExposureFile != "" {
		return errors.New("exposure_url and exposure_file are mutually exclusive")
	}
	return nil
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If NODETRACE_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory if needed.
func EnsureDataDirectories(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", dataDir, err)
	}
	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *DeviceConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*DeviceConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

func defaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "nodetrace device"
}

func defaultConfig() *DeviceConfig {
	return &DeviceConfig{
		DeviceID:             uuid.NewString(),
		DeviceName:           defaultDeviceName(),
		Mode:                 DefaultMode,
		SweepIntervalMS:      DefaultSweepIntervalMS,
		OutOfRangeTimeoutMS:  DefaultOutOfRangeTimeoutMS,
		RiskCheckIntervalMS:  DefaultRiskCheckIntervalMS,
		ContactRetentionDays: DefaultContactRetentionDays,
		EventsListenAddr:     DefaultEventsListenAddr,
		SimulatedRSSI:        DefaultSimulatedRSSI,
	}
}

func normalizeDefaults(cfg *DeviceConfig) bool {
	updated := false

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		updated = true
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName()
		updated = true
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
		updated = true
	}
	if cfg.SweepIntervalMS <= 0 {
		cfg.SweepIntervalMS = DefaultSweepIntervalMS
		updated = true
	}
	if cfg.OutOfRangeTimeoutMS <= 0 {
		cfg.OutOfRangeTimeoutMS = DefaultOutOfRangeTimeoutMS
		updated = true
	}
	if cfg.RiskCheckIntervalMS <= 0 {
		cfg.RiskCheckIntervalMS = DefaultRiskCheckIntervalMS
		updated = true
	}
	if cfg.ContactRetentionDays <= 0 {
		cfg.ContactRetentionDays = DefaultContactRetentionDays
		updated = true
	}
	if cfg.EventsListenAddr == "" {
		cfg.EventsListenAddr = DefaultEventsListenAddr
		updated = true
	}
	if cfg.SimulatedRSSI >= 0 {
		cfg.SimulatedRSSI = DefaultSimulatedRSSI
		updated = true
	}

	return updated
}
