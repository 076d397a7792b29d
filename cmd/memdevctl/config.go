package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/memdev/internal/client"
	"github.com/danmuck/memdev/internal/device"
	"github.com/danmuck/memdev/internal/transport"
)

const (
	transportHTTP = "http"
	transportFile = "file"
)

type ctlConfig struct {
	Transport string
	Addr      string
	Device    string
	Path      string
	Timeout   time.Duration
	Token     string
	TLS       transport.TLSConfig
}

type fileConfig struct {
	Transport string              `toml:"transport"`
	Addr      string              `toml:"addr"`
	Device    string              `toml:"device"`
	Path      string              `toml:"path"`
	Timeout   string              `toml:"timeout"`
	Token     string              `toml:"token"`
	TLS       transport.TLSConfig `toml:"tls"`
}

func defaultCtlConfig() ctlConfig {
	return ctlConfig{
		Transport: transportHTTP,
		Addr:      "http://localhost:9200",
		Device:    device.DefaultName,
		Path:      client.DefaultDevicePath,
		Timeout:   5 * time.Second,
	}
}

func loadCtlConfig(path string) (ctlConfig, error) {
	cfg := defaultCtlConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ctlConfig{}, fmt.Errorf("load ctl config: %w", err)
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return ctlConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS
	}

	if err := cfg.validate(); err != nil {
		return ctlConfig{}, err
	}
	return cfg, nil
}

func (c ctlConfig) validate() error {
	switch c.Transport {
	case transportHTTP:
		if c.Addr == "" {
			return fmt.Errorf("ctl config: addr required for http transport")
		}
		if !device.ValidName(c.Device) {
			return fmt.Errorf("ctl config: invalid device name %q", c.Device)
		}
		if c.Timeout <= 0 {
			return fmt.Errorf("ctl config: timeout must be positive")
		}
		return c.TLS.ValidateClient()
	case transportFile:
		if c.Path == "" {
			return fmt.Errorf("ctl config: path required for file transport")
		}
		return nil
	default:
		return fmt.Errorf("ctl config: unknown transport %q", c.Transport)
	}
}
