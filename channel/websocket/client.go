package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/mcp-apps-go/channel"
	"github.com/gorilla/websocket"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHeader adds headers to the opening handshake.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) { c.header = h }
}

// Client is a channel endpoint connected to a Hub.
type Client struct {
	ws     *websocket.Conn
	log    *slog.Logger
	header http.Header
	fanout channel.Fanout

	writeMu sync.Mutex
	done    chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

var _ channel.Channel = (*Client)(nil)

// Dial connects to the hub at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		log:    slog.Default(),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	c.ws = ws

	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	defer close(c.done)
	defer c.fanout.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Debug("channel.ws.client.read.end", slog.String("err", err.Error()))
			}
			return
		}
		var env channel.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("channel.ws.decode.fail", slog.String("err", err.Error()))
			continue
		}
		c.fanout.Deliver(env)
	}
}

// Post implements channel.Channel.
func (c *Client) Post(ctx context.Context, env channel.Envelope) error {
	select {
	case <-c.closed:
		return channel.ErrClosed
	case <-c.done:
		return channel.ErrClosed
	default:
	}

	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Listen implements channel.Channel.
func (c *Client) Listen(fn channel.Listener) (func(), error) {
	return c.fanout.Add(fn)
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
		<-c.done
	})
	return err
}
