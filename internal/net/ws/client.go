package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MurkesM/ARPG/internal/replication"
	"github.com/MurkesM/ARPG/internal/telemetry"
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("ws: client closed")

// Client is the observer end of an authority connection. It forwards
// requests upstream and feeds received envelopes to a subscriber.
type Client struct {
	conn   *websocket.Conn
	logger telemetry.Logger

	writeMu sync.Mutex
	closed  bool
}

// Dial connects to the authority observer endpoint.
func Dial(ctx context.Context, url string, logger telemetry.Logger) (*Client, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn, logger: logger}, nil
}

// SendRequest implements replication.Uplink. Safe for concurrent use.
func (c *Client) SendRequest(req replication.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(replication.RequestEnvelope(req))
}

// Run reads envelopes until the connection fails or ctx is cancelled.
func (c *Client) Run(ctx context.Context, sub replication.Subscriber) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	c.conn.SetReadLimit(maxSnapshotSize)
	for {
		var env replication.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read envelope: %w", err)
		}
		sub.Deliver(env)
	}
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}
