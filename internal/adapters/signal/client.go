package signal

import (
	"context"
	"sync"
	"time"

	"github.com/avelin/peercall/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const redialDelay = time.Second

// Client keeps one websocket to the relay hub. Inbound frames go to the
// handler in arrival order; the socket is redialed with a fixed delay when it
// drops. Send delivers in submission order through a write lock.
type Client struct {
	url       string
	onMessage func(core.Frame)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewClient(url string, onMessage func(core.Frame)) *Client {
	return &Client{url: url, onMessage: onMessage}
}

// Run dials the relay and pumps inbound frames until ctx is cancelled or
// Close is called. Dropped sockets are redialed.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.client").Str("url", c.url).Msg("dial relay")
			if !sleepCtx(ctx, redialDelay) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		log.Info().Str("module", "signal.client").Str("url", c.url).Msg("relay connected")

		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if !sleepCtx(ctx, redialDelay) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal.client").Msg("relay read done")
			return
		}
		c.onMessage(data)
	}
}

// Send implements the session's outbound contract (core.SendFunc).
func (c *Client) Send(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.conn == nil {
		return ErrConnClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, f)
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
