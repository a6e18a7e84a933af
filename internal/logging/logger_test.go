package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func reset() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	globalLevelVar.Set(slog.LevelInfo)
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	reset()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"camera": "debug",
			"api":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"camera", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestTeeHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(teeHandler{debugHandler, infoHandler}).With("module", "test")
	logger.Debug("debug only message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, output)
	}
	if !strings.Contains(output, "module=test") {
		t.Errorf("module attribute missing. Output: %s", output)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	reset()

	before := GetLogger("recording")
	handler := before.Handler()
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"recording": "debug"},
	})

	// the early logger shares the module LevelVar
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("early logger should have debug enabled after Initialize")
	}
	if !GetLogger("recording").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger after Initialize should have debug enabled")
	}
}

func TestSetLevels(t *testing.T) {
	reset()
	Initialize(Config{Level: "warn", Format: "text"})

	camera := GetLogger("camera").Handler()
	api := GetLogger("api").Handler()
	ctx := context.Background()

	SetLevels("info", map[string]string{"camera": "debug", "api": "loud"})

	if !camera.Enabled(ctx, slog.LevelDebug) {
		t.Error("camera: debug should be enabled after SetLevels")
	}
	if !api.Enabled(ctx, slog.LevelInfo) || api.Enabled(ctx, slog.LevelDebug) {
		t.Error("api: invalid override should fall back to the global info level")
	}

	global, modules := Levels()
	if global != "info" {
		t.Errorf("global level = %q, want info", global)
	}
	want := []ModuleLevel{{Module: "api", Level: "info"}, {Module: "camera", Level: "debug"}}
	if diff := cmp.Diff(want, modules); diff != "" {
		t.Errorf("Levels() mismatch (-want +got):\n%s", diff)
	}

	// an unknown global level keeps the current one
	SetLevels("chatty", nil)
	if global, _ := Levels(); global != "info" {
		t.Errorf("global level = %q after invalid SetLevels, want info", global)
	}
	if camera.Enabled(ctx, slog.LevelDebug) {
		t.Error("camera override should be cleared")
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
			if got == nil {
				t.Fatalf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
			if levelName(*got) != strings.Replace(strings.ToLower(tt.input), "warning", "warn", 1) {
				t.Errorf("levelName(%v) = %q", *got, levelName(*got))
			}
		})
	}
}
