package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/memdev/internal/chardev"
	"github.com/danmuck/memdev/internal/client"
	"github.com/danmuck/memdev/internal/logging"
	"github.com/rs/zerolog/log"
)

// bufferSize matches the device buffer so one read returns the whole contents.
const bufferSize = chardev.DefaultCapacity

const usageLine = "Usage: memdevctl <read|write> [message]"

var errUsage = errors.New("usage")

func main() {
	logging.ConfigureRuntime()

	configPath := flag.String("config", "", "ctl config path (toml)")
	transportKind := flag.String("transport", "", "device transport: http|file")
	addr := flag.String("addr", "", "daemon base url for http transport")
	deviceName := flag.String("device", "", "device name for http transport")
	path := flag.String("path", "", "device node path for file transport")
	token := flag.String("token", "", "bearer token for http transport")
	flag.Parse()

	cfg := defaultCtlConfig()
	if *configPath != "" {
		loaded, err := loadCtlConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "memdevctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = strings.ToLower(strings.TrimSpace(*transportKind))
		case "addr":
			cfg.Addr = *addr
		case "device":
			cfg.Device = *deviceName
		case "path":
			cfg.Path = *path
		case "token":
			cfg.Token = strings.TrimSpace(*token)
		}
	})
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "memdevctl: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := run(ctx, cfg, flag.Args(), os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			log.Error().Err(err).Str("transport", cfg.Transport).Msg("device command failed")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg ctlConfig, args []string, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, usageLine)
		return errUsage
	}

	switch args[0] {
	case "read":
		return readDevice(ctx, cfg, out)
	case "write":
		if len(args) < 2 {
			fmt.Fprintln(out, `Usage: memdevctl write "Your message here"`)
			return errUsage
		}
		return writeDevice(ctx, cfg, strings.Join(args[1:], " "), out)
	default:
		fmt.Fprintln(out, "Invalid command. Use 'read' or 'write'.")
		fmt.Fprintln(out, usageLine)
		return errUsage
	}
}

func openDevice(ctx context.Context, cfg ctlConfig) (client.Device, error) {
	if cfg.Transport == transportFile {
		return client.OpenFile(cfg.Path)
	}
	tlsConfig, err := cfg.TLS.ClientTLS()
	if err != nil {
		return nil, err
	}
	return client.Dial(ctx, cfg.Addr, cfg.Device, client.WithTLS(tlsConfig), client.WithTimeout(cfg.Timeout), client.WithToken(cfg.Token))
}

// readDevice prints the device contents up to the first NUL byte.
func readDevice(ctx context.Context, cfg ctlConfig, out io.Writer) error {
	dev, err := openDevice(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer dev.Close()

	buffer := make([]byte, bufferSize)
	n, err := dev.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading from device: %w", err)
	}
	text := buffer[:n]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	fmt.Fprintf(out, "Read %d bytes from device:\n%s\n", n, text)
	return nil
}

func writeDevice(ctx context.Context, cfg ctlConfig, message string, out io.Writer) error {
	dev, err := openDevice(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer dev.Close()

	n, err := dev.Write([]byte(message))
	if err != nil && !errors.Is(err, io.ErrShortWrite) {
		return fmt.Errorf("writing to device: %w", err)
	}
	fmt.Fprintf(out, "Wrote %d bytes to device.\n", n)
	return nil
}
