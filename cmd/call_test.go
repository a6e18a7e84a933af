package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/smazurov/camctl/internal/commands"
	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/hal/sim"
	"github.com/smazurov/camctl/internal/natsbridge"
)

func startCamctl(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := natsbridge.NewServer(natsbridge.ServerOptions{Port: natsbridge.RandomPort, Logger: logger})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)

	bus := events.New()
	d := commands.New(sim.New(sim.Options{}).Backend(), bus)
	t.Cleanup(func() { _ = d.Dispose(context.Background()) })

	bridge := natsbridge.NewBridge(server.ClientURL(), d, bus, logger)
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	t.Cleanup(bridge.Stop)
	return server.ClientURL()
}

func TestCallCommand(t *testing.T) {
	url := startCamctl(t)

	out, err := run(t, CreateCallCmd(), "--url", url, "availableCameras")
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if !strings.Contains(out, `"lensFacing":"back"`) {
		t.Errorf("availableCameras output = %s", out)
	}

	out, err = run(t, CreateCallCmd(), "--url", url, "initialize", `{"cameraName":"0","resolutionPreset":"low"}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if !strings.Contains(out, `"textureId"`) {
		t.Errorf("initialize output = %s", out)
	}

	out, err = run(t, CreateCallCmd(), "--url", url, "dispose")
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if strings.TrimSpace(out) != "null" {
		t.Errorf("dispose output = %q, want null", out)
	}
}

func TestCallCommandErrors(t *testing.T) {
	url := startCamctl(t)

	_, err := run(t, CreateCallCmd(), "--url", url, "takePicture", `{"path":"/tmp/x.jpg"}`)
	var wireErr *commands.Error
	if !errors.As(err, &wireErr) || wireErr.Code != commands.CodeCameraNotReady {
		t.Errorf("takePicture without camera error = %v, want %s", err, commands.CodeCameraNotReady)
	}

	if _, err := run(t, CreateCallCmd(), "--url", url, "initialize", `{cameraName`); err == nil {
		t.Error("invalid JSON arguments accepted")
	}
}
