package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup_WritesToOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger.Info().Str("component", "scheduler").Msg("rate updated")

	out := buf.String()
	if !strings.Contains(out, "rate updated") {
		t.Errorf("Expected output to contain message, got %q", out)
	}
	if !strings.Contains(out, `"component":"scheduler"`) {
		t.Errorf("Expected structured component field, got %q", out)
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{
		Level:  LevelWarn,
		Pretty: false,
		Output: buf,
	})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("Messages below warn level should be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("Expected warn message in output, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LogLevel("warning"), "warn"},
		{LevelError, "error"},
		{LogLevel("unknown"), "info"},
		{LogLevel(""), "info"},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			level := parseLevel(tt.input)
			if level.String() != tt.expected {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, level, tt.expected)
			}
		})
	}
}

func TestNewLogger_ComponentField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("dispatcher")
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"dispatcher"`) {
		t.Errorf("Expected component field, got %q", buf.String())
	}
}
