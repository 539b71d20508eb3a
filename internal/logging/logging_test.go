package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("DefaultConfig().Level = %s, want info", cfg.Level)
	}
	if cfg.Format != "text" {
		t.Errorf("DefaultConfig().Format = %s, want text", cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("DefaultConfig().Output = %s, want stderr", cfg.Output)
	}
}

func TestSetup_Formats(t *testing.T) {
	for _, format := range []string{"text", "json", ""} {
		if err := Setup(Config{Level: "info", Format: format, Output: "stderr"}); err != nil {
			t.Errorf("Setup(format=%q) error = %v", format, err)
		}
	}
}

func TestSetup_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "remipn.log")

	if err := Setup(Config{Level: "debug", Format: "text", Output: logFile}); err != nil {
		t.Fatalf("Setup() with file output error = %v", err)
	}
	defer func() {
		Close()
		Setup(DefaultConfig())
	}()

	WithComponent("test").Debug("hello file")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file missing message, got %q", data)
	}
	if !strings.Contains(string(data), "component=test") {
		t.Errorf("log file missing component attribute, got %q", data)
	}
}

func TestSetup_InvalidLevel(t *testing.T) {
	if err := Setup(Config{Level: "loud"}); err == nil {
		t.Error("Setup() should fail for an unknown level")
	}
}

func TestSetup_InvalidFormat(t *testing.T) {
	if err := Setup(Config{Level: "info", Format: "xml"}); err == nil {
		t.Error("Setup() should fail for an unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	defer level.Set(slog.LevelInfo)

	if err := SetLevel("error"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if level.Level() != slog.LevelError {
		t.Errorf("level = %v, want error", level.Level())
	}
	if err := SetLevel("nope"); err == nil {
		t.Error("SetLevel() should reject unknown levels")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithContext(context.Background(), logger)
	FromContext(ctx, nil).Info("from context")

	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("expected message in context logger output, got %q", buf.String())
	}
}

func TestFromContext_Fallback(t *testing.T) {
	fallback := Discard()

	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("FromContext() should return the fallback when ctx has no logger")
	}
	if got := FromContext(context.Background(), nil); got != Default() {
		t.Error("FromContext() should return the default logger without a fallback")
	}
}

func TestOrDefault(t *testing.T) {
	l := Discard()
	if OrDefault(l) != l {
		t.Error("OrDefault() should return the given logger")
	}
	if OrDefault(nil) != Default() {
		t.Error("OrDefault(nil) should return the default logger")
	}
}
