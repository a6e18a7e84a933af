package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/version"
)

// DefaultCallTimeout bounds one command. Stopping a recording includes the
// repair pass, so it is generous.
const DefaultCallTimeout = 30 * time.Second

// Caller runs a command method. *commands.Dispatcher implements it.
type Caller interface {
	Call(ctx context.Context, method string, args json.RawMessage) (any, error)
}

// Bridge answers control requests and forwards camera events.
type Bridge struct {
	url         string
	caller      Caller
	eventBus    *events.Bus
	callTimeout time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	conn        *nats.Conn
	sub         *nats.Subscription
	unsubEvents func()
}

// NewBridge creates a bridge serving caller on the NATS server at url.
// Events are forwarded when eventBus is non-nil.
func NewBridge(url string, caller Caller, eventBus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		url:         url,
		caller:      caller,
		eventBus:    eventBus,
		callTimeout: DefaultCallTimeout,
		logger:      logger.With("component", "nats-bridge"),
	}
}

// SetCallTimeout overrides DefaultCallTimeout. Call before Start.
func (b *Bridge) SetCallTimeout(d time.Duration) {
	if d > 0 {
		b.callTimeout = d
	}
}

// Start connects, subscribes to control subjects and starts forwarding events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return errors.New("nats bridge already started")
	}

	conn, err := nats.Connect(b.url,
		nats.Name(version.ClientName("bridge")),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	// one subscription keeps commands in arrival order
	sub, err := conn.Subscribe(SubjectControlPrefix+".*", b.handleControl)
	if err != nil {
		conn.Close()
		return err
	}
	b.conn = conn
	b.sub = sub

	if b.eventBus != nil {
		b.unsubEvents = b.eventBus.SubscribeCamera(b.forward)
	}

	b.logger.Info("NATS bridge connected", "url", redactURL(b.url), "subject", SubjectControlPrefix+".*")
	return nil
}

func (b *Bridge) handleControl(msg *nats.Msg) {
	method, ok := methodFromSubject(msg.Subject)
	if !ok {
		b.logger.Warn("Ignoring malformed control subject", "subject", msg.Subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.callTimeout)
	defer cancel()

	start := time.Now()
	result, err := b.caller.Call(ctx, method, msg.Data)
	reply := newReply(result, err)

	if reply.Error != nil {
		b.logger.Info("Command failed", "method", method, "code", reply.Error.Code, "message", reply.Error.Message)
	} else {
		b.logger.Debug("Command completed", "method", method, "duration", time.Since(start))
	}

	if msg.Reply == "" {
		return
	}
	data, err := reply.Marshal()
	if err != nil {
		b.logger.Error("Failed to marshal reply", "method", method, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("Failed to send reply", "method", method, "error", err)
	}
}

func (b *Bridge) forward(e events.CameraEvent) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := marshalEvent(e)
	if err != nil {
		b.logger.Warn("Failed to marshal event", "error", err)
		return
	}
	if err := conn.Publish(SubjectCameraEvents(e.Texture()), data); err != nil {
		b.logger.Debug("Failed to publish event", "texture_id", e.Texture(), "error", err)
	}
}

// Stop stops forwarding events, unsubscribes and closes the connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsub := b.unsubEvents
	b.unsubEvents = nil
	b.mu.Unlock()

	// forward takes mu, so the bus subscription goes first and unlocked
	if unsub != nil {
		unsub()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
