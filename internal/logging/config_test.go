package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		" Debug ":  zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"inactive": zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	if _, ok := ParseLevel(""); ok {
		t.Fatalf("expected empty level to be rejected")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogBypass, "not-a-bool")

	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg)
	if cfg.Level != zerolog.WarnLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("expected timestamp disabled")
	}
	if !cfg.NoColor {
		t.Fatalf("expected no color")
	}
	if cfg.Bypass {
		t.Fatalf("invalid bool should not flip bypass")
	}
}

func TestBuildToBypassWritesJSON(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig(ProfileTest)
	cfg.Bypass = true

	logger, closer, err := BuildTo(&out, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer closer.Close()

	logger.Debug().Str("device", "my_device").Msg("device opened")
	line := out.String()
	if !strings.Contains(line, `"device":"my_device"`) || !strings.Contains(line, `"message":"device opened"`) {
		t.Fatalf("unexpected log line: %q", line)
	}

	out.Reset()
	cfg.Level = zerolog.InfoLevel
	logger, _, _ = BuildTo(&out, cfg)
	logger.Debug().Msg("hidden")
	if out.Len() != 0 {
		t.Fatalf("debug line leaked at info level: %q", out.String())
	}
}

func TestBuildToFileOutputs(t *testing.T) {
	for _, rotate := range []bool{false, true} {
		dir := t.TempDir()
		cfg := DefaultConfig(ProfileTest)
		cfg.Bypass = true
		cfg.File = filepath.Join(dir, "logs", "memdev.log")
		cfg.Rotation.Enabled = rotate

		var console bytes.Buffer
		logger, closer, err := BuildTo(&console, cfg)
		if err != nil {
			t.Fatalf("build rotate=%v: %v", rotate, err)
		}
		logger.Info().Msg("to file")
		if err := closer.Close(); err != nil {
			t.Fatalf("close rotate=%v: %v", rotate, err)
		}

		data, err := os.ReadFile(cfg.File)
		if err != nil {
			t.Fatalf("read log file rotate=%v: %v", rotate, err)
		}
		if !strings.Contains(string(data), "to file") {
			t.Fatalf("file missing line rotate=%v: %q", rotate, string(data))
		}
		if !strings.Contains(console.String(), "to file") {
			t.Fatalf("console missing line rotate=%v", rotate)
		}
	}
}
