package push

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the server.
	maxMessageSize = 64 * 1024

	// Reconnect backoff bounds.
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Channel is the client side of the push connection: at most one live
// websocket per session, delivering the four decoded event kinds to a sink.
// No ordering across event kinds is assumed; the reducer's idempotence is
// what makes reconnect-time duplicates safe.
type Channel struct {
	endpoint string
	deliver  func(event interface{})
	logger   *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewChannel prepares a push channel against the given HTTP server URL. The
// deliver callback receives decoded engine events and is invoked from the
// read loop, one event at a time.
func NewChannel(serverURL, token string, deliver func(event interface{}), logger *slog.Logger) (*Channel, error) {
	endpoint, err := websocketEndpoint(serverURL, token)
	if err != nil {
		return nil, err
	}
	return &Channel{
		endpoint: endpoint,
		deliver:  deliver,
		logger:   logger,
	}, nil
}

func websocketEndpoint(serverURL, token string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/ws"
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Run dials the server and pumps events until ctx is cancelled or Close is
// called. Connection drops trigger redial with capped exponential backoff;
// events missed while disconnected are recovered by the next history fetch.
func (c *Channel) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			c.logger.Warn("push dial failed", "error", err, "retryIn", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.setConn(conn)
		c.logger.Info("push channel connected")
		backoff = initialBackoff

		c.readLoop(ctx, conn)
		c.setConn(nil)

		if c.isClosed() || ctx.Err() != nil {
			return
		}
		c.logger.Info("push channel disconnected, reconnecting")
	}
}

// readLoop pumps frames off the connection until it errors. A ping ticker
// keeps the connection alive; pongs extend the read deadline.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.isClosed() {
				c.logger.Warn("push read error", "error", err)
			}
			return
		}

		event, err := DecodeFrame(raw)
		if err != nil {
			// A frame this client cannot decode is dropped, not fatal.
			c.logger.Warn("dropping undecodable push frame", "error", err)
			continue
		}
		c.deliver(event)
	}
}

// Close tears the channel down. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signing out"),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
	}
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
