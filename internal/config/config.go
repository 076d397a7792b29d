package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/memdev/internal/device"
	"github.com/danmuck/memdev/internal/logging"
	"github.com/danmuck/memdev/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultName            = "memdevd"
	DefaultAddr            = ":9200"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 5 * time.Second
)

type DaemonConfig struct {
	Name            string              `toml:"name"`
	Addr            string              `toml:"addr"`
	CorsOrigins     []string            `toml:"cors_origins"`
	MaxBodyBytes    int64               `toml:"max_body_bytes"`
	ShutdownTimeout string              `toml:"shutdown_timeout"`
	AuthToken       string              `toml:"auth_token"`
	Devices         []DeviceConfig      `toml:"devices"`
	Log             LogConfig           `toml:"log"`
	TLS             transport.TLSConfig `toml:"tls"`
}

type DeviceConfig struct {
	Name     string `toml:"name"`
	Capacity int    `toml:"capacity"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	NoColor    bool   `toml:"no_color"`
	JSON       bool   `toml:"json"`
	File       string `toml:"file"`
	Rotate     bool   `toml:"rotate"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// DefaultDaemonConfig serves the original single device.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Name:            DefaultName,
		Addr:            DefaultAddr,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		ShutdownTimeout: DefaultShutdownTimeout.String(),
		Devices: []DeviceConfig{
			{Name: device.DefaultName, Capacity: device.DefaultCapacity},
		},
		Log: LogConfig{Level: "info"},
	}
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	applyDaemonDefaults(&cfg)
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func applyDaemonDefaults(cfg *DaemonConfig) {
	defaults := DefaultDaemonConfig()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = defaults.Name
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if strings.TrimSpace(cfg.ShutdownTimeout) == "" {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = defaults.Devices
	}
	for i := range cfg.Devices {
		cfg.Devices[i].Name = strings.TrimSpace(cfg.Devices[i].Name)
		if cfg.Devices[i].Capacity == 0 {
			cfg.Devices[i].Capacity = device.DefaultCapacity
		}
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("daemon config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("daemon config missing addr")
	}
	for i, origin := range cfg.CorsOrigins {
		if err := ValidateCorsOrigin(origin); err != nil {
			return fmt.Errorf("cors_origins[%d] invalid: %w", i, err)
		}
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("daemon config max_body_bytes must not be negative")
	}
	if _, err := cfg.Shutdown(); err != nil {
		return err
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("daemon config needs at least one device")
	}
	seen := make(map[string]struct{}, len(cfg.Devices))
	for i, dev := range cfg.Devices {
		if err := ValidateDeviceEntry(dev); err != nil {
			return fmt.Errorf("devices[%d] invalid: %w", i, err)
		}
		if _, ok := seen[dev.Name]; ok {
			return fmt.Errorf("devices[%d] invalid: duplicate name %q", i, dev.Name)
		}
		seen[dev.Name] = struct{}{}
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("daemon config log level %q is unknown", cfg.Log.Level)
	}
	if err := cfg.TLS.ValidateServer(); err != nil {
		return fmt.Errorf("daemon config tls invalid: %w", err)
	}
	return nil
}

func ValidateDeviceEntry(cfg DeviceConfig) error {
	if !device.ValidName(strings.TrimSpace(cfg.Name)) {
		return fmt.Errorf("name %q is not a valid device name", cfg.Name)
	}
	if cfg.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	return nil
}

// ValidateCorsOrigin accepts "*" or an http(s) origin without wildcards,
// matching what the daemon's cors middleware will load.
func ValidateCorsOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return fmt.Errorf("origin %q must start with http:// or https://", origin)
	}
	if strings.Contains(origin, "*") {
		return fmt.Errorf("origin %q: wildcards are only allowed as a bare \"*\"", origin)
	}
	return nil
}

// Shutdown parses the shutdown_timeout duration.
func (c DaemonConfig) Shutdown() (time.Duration, error) {
	raw := strings.TrimSpace(c.ShutdownTimeout)
	if raw == "" {
		return DefaultShutdownTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse shutdown_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("shutdown_timeout must be positive")
	}
	return d, nil
}
