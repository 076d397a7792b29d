package config

import "github.com/danmuck/memdev/internal/logging"

// Logging maps the [log] table onto the runtime logging profile.
func (c LogConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Level); ok {
		cfg.Level = lvl
	}
	cfg.NoColor = c.NoColor
	cfg.Bypass = c.JSON
	cfg.File = c.File
	cfg.Rotation.Enabled = c.Rotate
	if c.MaxSizeMB > 0 {
		cfg.Rotation.MaxSizeMB = c.MaxSizeMB
	}
	if c.MaxBackups > 0 {
		cfg.Rotation.MaxBackups = c.MaxBackups
	}
	if c.MaxAgeDays > 0 {
		cfg.Rotation.MaxAgeDays = c.MaxAgeDays
	}
	cfg.Rotation.Compress = c.Compress
	logging.ApplyEnvOverrides(&cfg)
	return cfg
}
