// Package systemd reports service state to systemd through sd_notify.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends readiness, status and watchdog notifications. Outside a
// systemd unit every call is a no-op.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
}

// NewNotifier creates a Notifier using the NOTIFY_SOCKET of the process.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}

// Ready reports that the service finished starting.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// Watchdog pings the service watchdog at half the configured interval
// until ctx is done. It returns at once when WatchdogSec is not set.
func (n *Notifier) Watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	n.watchdog(ctx, interval/2)
}

func (n *Notifier) watchdog(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
