package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

func resetLogging() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevels = make(map[string]*slog.LevelVar)
	globalConfig = Config{}
	isInitialized = false
	entryCallback = nil
	history = NewHistory(historySize)
	mutex.Unlock()
}

func enabled(logger *slog.Logger, level slog.Level) bool {
	return logger.Handler().Enabled(context.Background(), level)
}

func TestModuleLevelOverride(t *testing.T) {
	resetLogging()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"strobe": "debug",
			"api":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"strobe", true, true, true},
		{"api", false, false, true},
		{"torch", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			logger := GetLogger(tt.module)
			if got := enabled(logger, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := enabled(logger, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := enabled(logger, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetLogging()

	before := GetLogger("safety")
	if enabled(before, slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{
		Level:   "info",
		Modules: map[string]string{"safety": "debug"},
	})

	after := GetLogger("safety")
	if before != after {
		t.Error("logger should be cached across Initialize")
	}
	if !enabled(before, slog.LevelDebug) {
		t.Error("cached logger should follow the new level")
	}
}

func TestApplyLevels(t *testing.T) {
	resetLogging()
	Initialize(Config{Level: "info", Format: "json"})

	logger := GetLogger("power")
	ApplyLevels(Config{Level: "error", Modules: map[string]string{"torch": "debug"}})

	if enabled(logger, slog.LevelWarn) {
		t.Error("power should follow the new global error level")
	}
	if !enabled(GetLogger("torch"), slog.LevelDebug) {
		t.Error("torch should pick up its module override")
	}

	mutex.RLock()
	format := globalConfig.Format
	mutex.RUnlock()
	if format != "json" {
		t.Errorf("format changed to %q", format)
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetLogging()
	Initialize(Config{Level: "info"})

	if err := SetModuleLevel("led", "debug"); err != nil {
		t.Fatalf("SetModuleLevel failed: %v", err)
	}
	if !enabled(GetLogger("led"), slog.LevelDebug) {
		t.Error("led should log debug")
	}
	if got := Levels()["led"]; got != "debug" {
		t.Errorf("Levels()[led] = %q, want debug", got)
	}

	if err := SetModuleLevel("led", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}

	GetLogger("api")
	modules := Modules()
	if len(modules) != 2 || modules[0] != "api" || modules[1] != "led" {
		t.Errorf("Modules() = %v", modules)
	}
}

func TestHistoryCapturesEntries(t *testing.T) {
	resetLogging()
	Initialize(Config{Level: "debug"})

	var seen []Entry
	SetEntryCallback(func(e Entry) { seen = append(seen, e) })

	logger := GetLogger("torch").WithGroup("strobe")
	logger.Info("Strobe started", "interval", 100*time.Millisecond, "error", errors.New("boom"))

	entries := GetHistory().Entries()
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "torch" || e.Level != "info" || e.Message != "Strobe started" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attributes["strobe.interval"] != "100ms" {
		t.Errorf("interval attr = %v", e.Attributes["strobe.interval"])
	}
	if e.Attributes["strobe.error"] != "boom" {
		t.Errorf("error attr = %v", e.Attributes["strobe.error"])
	}
	if len(seen) != 1 {
		t.Errorf("callback saw %d entries, want 1", len(seen))
	}
}

func TestHistoryTail(t *testing.T) {
	h := NewHistory(3)
	if got := h.Entries(); len(got) != 0 {
		t.Fatalf("empty history returned %v", got)
	}

	for i := range 5 {
		h.Append(Entry{Message: fmt.Sprint(i)})
	}

	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}

	messages := func(entries []Entry) string {
		parts := make([]string, len(entries))
		for i, e := range entries {
			parts[i] = e.Message
		}
		return strings.Join(parts, ",")
	}

	if got := messages(h.Entries()); got != "2,3,4" {
		t.Errorf("Entries() = %s, want 2,3,4", got)
	}
	if got := messages(h.Tail(2)); got != "3,4" {
		t.Errorf("Tail(2) = %s, want 3,4", got)
	}
	if got := messages(h.Tail(10)); got != "2,3,4" {
		t.Errorf("Tail(10) = %s, want 2,3,4", got)
	}
}

func TestFormatEntry(t *testing.T) {
	e := Entry{
		Timestamp:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:      "warn",
		Module:     "safety",
		Message:    "Safety interlock tripped",
		Attributes: map[string]any{"reason": "LowPower", "level": 5},
	}
	want := "2025-01-02T03:04:05Z [WARN] [safety] Safety interlock tripped level=5 reason=LowPower"
	if got := FormatEntry(e); got != want {
		t.Errorf("FormatEntry = %q, want %q", got, want)
	}
}

func TestJournalFields(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelWarn, "Torch command failed", 0)
	r.AddAttrs(
		slog.String("error", "COMMAND_FAILED"),
		slog.Group("strobe", slog.Int("edges", 3)),
	)

	fields := journalFields(r, journal.PriWarning, []slog.Attr{slog.String("module", "torch")}, nil)

	want := map[string]string{
		"PRIORITY":          "4",
		"SYSLOG_IDENTIFIER": "torchnode",
		"MODULE":            "torch",
		"ERROR":             "COMMAND_FAILED",
		"STROBE_EDGES":      "3",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, fields[k], v)
		}
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")
	logger.Info("info message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("expected 1 debug line, got %d. Output: %s", count, output)
	}
	if count := strings.Count(output, "info message"); count != 2 {
		t.Errorf("expected 2 info lines, got %d. Output: %s", count, output)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
