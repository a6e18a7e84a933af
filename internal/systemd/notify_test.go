package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.err == nil, r.err
}

func (r *recorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func newTestNotifier(r *recorder) *Notifier {
	return &Notifier{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), notify: r.notify}
}

func TestNotifierStates(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r)

	n.Ready()
	n.Status("camera 0 previewing")
	n.Stopping()

	want := []string{daemon.SdNotifyReady, "STATUS=camera 0 previewing", daemon.SdNotifyStopping}
	if diff := cmp.Diff(want, r.sent()); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifierErrorsAreAbsorbed(t *testing.T) {
	r := &recorder{err: errors.New("socket closed")}
	n := newTestNotifier(r)
	n.Ready()
	if len(r.sent()) != 1 {
		t.Errorf("notifications = %v", r.sent())
	}
}

func TestWatchdogPingsUntilCancelled(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.watchdog(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.sent()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	for _, s := range r.sent() {
		if s != daemon.SdNotifyWatchdog {
			t.Errorf("unexpected notification %q", s)
		}
	}
	if len(r.sent()) < 2 {
		t.Errorf("watchdog pings = %d, want at least 2", len(r.sent()))
	}
}

func TestWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	n := newTestNotifier(&recorder{})
	// returns immediately without a watchdog interval
	n.Watchdog(context.Background())
}
