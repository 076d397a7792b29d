package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/memdev/internal/auth"
	"github.com/danmuck/memdev/internal/config"
	"github.com/danmuck/memdev/internal/device"
	"github.com/danmuck/memdev/internal/observability"
	"github.com/danmuck/memdev/internal/server"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/memdevd/config.toml", "daemon config path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "memdevd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	_, closer, err := observability.InitLogger(cfg.Name, cfg.Log.Logging())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	log.Info().Str("path", configPath).Int("devices", len(cfg.Devices)).Msg("loaded daemon config")

	tlsConfig, err := cfg.TLS.ServerTLS()
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.Shutdown()
	if err != nil {
		return err
	}

	registry := device.NewRegistry(device.MemoryLifecycle{})
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error().Err(err).Msg("device teardown failed")
		}
	}()
	for _, dev := range cfg.Devices {
		if _, err := registry.Create(dev.Name, dev.Capacity); err != nil {
			return err
		}
	}

	daemon := server.Appear(cfg.Name, cfg.Addr, registry, cfg.CorsOrigins)
	daemon.MaxBodyBytes = cfg.MaxBodyBytes
	if cfg.AuthToken != "" {
		daemon.Auth = auth.StaticToken{Token: cfg.AuthToken}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := daemon.Serve(ctx, tlsConfig, shutdownTimeout); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info().Str("name", cfg.Name).Msg("daemon exited")
	return nil
}

// loadConfig falls back to defaults when no config file exists at path.
func loadConfig(path string) (config.DaemonConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultDaemonConfig(), nil
	}
	return config.LoadDaemonConfig(path)
}
