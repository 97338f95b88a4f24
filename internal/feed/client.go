// Package feed drives the upstream pump.fun-style WebSocket: the connection
// itself and the subscription set that must survive reconnects.
package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// ClientConfig configures one upstream connection.
type ClientConfig struct {
	// PingInterval is the cadence of client ping frames.
	PingInterval time.Duration
	// PingTimeout is the write deadline for a single ping frame.
	PingTimeout time.Duration
}

// Client wraps one gorilla/websocket connection with the write locking and
// deadline handling every caller needs. Reconnection is the supervisor's job;
// a Client is dead once Read or a write fails.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	done     chan struct{}
	closeOne sync.Once
	wg       sync.WaitGroup
}

// Dial connects to the upstream feed. TLS certificate verification is
// disabled: the upstream endpoint serves a certificate that does not verify,
// and the data it carries is public market data.
func Dial(ctx context.Context, uri string, cfg ClientConfig) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
	}

	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", uri, err)
	}

	c := &Client{
		conn: conn,
		done: make(chan struct{}),
	}

	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(cfg)
	}

	return c, nil
}

// Read returns the next frame, waiting at most timeout. A deadline expiry is
// reported as a timeout error distinguishable via IsTimeout.
func (c *Client) Read(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteJSON sends one JSON frame. Safe for concurrent use.
func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteJSON(v)
}

// Close shuts the connection down. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOne.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

// pingLoop keeps the connection alive with periodic ping frames. A failed
// ping is left for the read path to observe.
func (c *Client) pingLoop(cfg ClientConfig) {
	defer c.wg.Done()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(cfg.PingTimeout))
			_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
		}
	}
}

// IsTimeout reports whether err is a read-deadline expiry rather than a
// connection failure.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
