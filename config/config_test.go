package config

import (
	"path/filepath"
	"testing"
	"time"

	"nodetrace/radio"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	firstCfg, firstPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if firstCfg.DeviceID == "" {
		t.Fatalf("expected non-empty device ID")
	}
	if firstCfg.Mode != DefaultMode {
		t.Fatalf("expected default mode %q, got %q", DefaultMode, firstCfg.Mode)
	}
	if firstCfg.OutOfRangeTimeout() != 12*time.Second || firstCfg.SweepInterval() != time.Second {
		t.Fatalf("unexpected presence timings %s/%s", firstCfg.OutOfRangeTimeout(), firstCfg.SweepInterval())
	}
	if firstCfg.RiskCheckInterval() != 6*time.Hour || firstCfg.Retention() != 14*24*time.Hour {
		t.Fatalf("unexpected risk timings %s/%s", firstCfg.RiskCheckInterval(), firstCfg.Retention())
	}

	expectedConfigPath := filepath.Join(tempDir, "config.json")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}

	secondCfg, secondPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.DeviceID != firstCfg.DeviceID {
		t.Fatalf("expected stable device ID, got %q then %q", firstCfg.DeviceID, secondCfg.DeviceID)
	}
}

func TestLoadOrCreateNormalizesPartialConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	cfgPath := filepath.Join(tempDir, "config.json")
	if err := EnsureDataDirectories(tempDir); err != nil {
		t.Fatalf("EnsureDataDirectories failed: %v", err)
	}

	partial := &DeviceConfig{
		DeviceID:     "legacy-device",
		DeviceName:   "Legacy",
		Mode:         string(radio.ModeScan),
		ExposureFile: filepath.Join(tempDir, "exposures.json"),
		Location:     &Location{Latitude: 52.1, Longitude: 5.1},
	}
	if err := Save(cfgPath, partial); err != nil {
		t.Fatalf("Save partial config failed: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.DeviceID != "legacy-device" || cfg.Mode != string(radio.ModeScan) {
		t.Fatalf("expected explicit values retained, got %+v", cfg)
	}
	if cfg.SimulatedRSSI != DefaultSimulatedRSSI {
		t.Fatalf("expected defaults filled, got %+v", cfg)
	}
	if cfg.Location == nil || cfg.Location.Latitude != 52.1 {
		t.Fatalf("expected location retained, got %+v", cfg.Location)
	}

	reloaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.EventsListenAddr != DefaultEventsListenAddr {
		t.Fatalf("expected normalized config persisted, got %q", reloaded.EventsListenAddr)
	}
}

func TestLoadOrCreateRejectsInvalidConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	cfg := defaultConfig()
	cfg.Mode = "broadcast"
	if err := Save(filepath.Join(tempDir, "config.json"), cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, _, err := LoadOrCreate(); err == nil {
		t.Fatalf("expected invalid mode to fail")
	}

	cfg.Mode = string(radio.ModeScan)
	cfg.ExposureURL = "https://exposures.example.com"
	cfg.ExposureFile = "/tmp/exposures.json"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected exclusive exposure sources to fail")
	}

	cfg.ExposureFile = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	mode, err := cfg.RadioMode()
	if err != nil || mode != radio.ModeScan {
		t.Fatalf("unexpected radio mode %q err=%v", mode, err)
	}

	cfg.Mode = ""
	if mode, err := cfg.RadioMode(); err != nil || mode != radio.ModeNone {
		t.Fatalf("expected empty mode to parse as none, got %q err=%v", mode, err)
	}
}
