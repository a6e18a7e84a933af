package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camctl/internal/version"
)

// Client sends commands to a bridge.
type Client struct {
	conn *nats.Conn
}

// Dial connects a client to the NATS server at url.
func Dial(url string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(version.ClientName("client")),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", redactURL(url), err)
	}
	return &Client{conn: conn}, nil
}

// Call invokes method with args, which may be nil, and decodes the result
// into out when out is non-nil. A command failure is returned as a
// *commands.Error.
func (c *Client) Call(ctx context.Context, method string, args, out any) error {
	var payload []byte
	if args != nil {
		var err error
		if payload, err = json.Marshal(args); err != nil {
			return fmt.Errorf("encode %s arguments: %w", method, err)
		}
	}

	msg, err := c.conn.RequestWithContext(ctx, SubjectControl(method), payload)
	if err != nil {
		return fmt.Errorf("request %s: %w", method, err)
	}
	reply, err := UnmarshalReply(msg.Data)
	if err != nil {
		return fmt.Errorf("decode %s reply: %w", method, err)
	}
	if reply.Error != nil {
		return reply.Error
	}
	if out != nil && len(reply.Result) > 0 {
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// SubscribeEvents delivers the events of one camera session to fn until the
// returned function is called.
func (c *Client) SubscribeEvents(textureID int64, fn func(EventMessage)) (func(), error) {
	sub, err := c.conn.Subscribe(SubjectCameraEvents(textureID), func(msg *nats.Msg) {
		if m, err := UnmarshalEvent(msg.Data); err == nil {
			fn(m)
		}
	})
	if err != nil {
		return nil, err
	}
	// the subscription must reach the server before events are published
	if err := c.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close closes the connection.
func (c *Client) Close() {
	c.conn.Close()
}
