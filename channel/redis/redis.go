// Package redis provides a Redis pub/sub implementation of channel.Channel.
// Every process subscribed to the same topic observes every envelope, which
// lets an App and its Host live in different processes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/mcp-apps-go/channel"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr   = "localhost:6379"
	defaultPrefix = "mcpui:channel:"
	defaultTopic  = "default"
)

// Config for a Redis-backed channel. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// Prefix for the pub/sub topic. ENV: MCPUI_CHANNEL_PREFIX
	Prefix string `env:"MCPUI_CHANNEL_PREFIX,default=mcpui:channel:"`
	// Topic names the channel; endpoints must agree on it. ENV: MCPUI_CHANNEL_TOPIC
	Topic string `env:"MCPUI_CHANNEL_TOPIC,default=default"`
}

// ConfigFromEnv populates a Config using envdecode.
func ConfigFromEnv() Config {
	var cfg Config
	// Defaults are provided via struct tags; New fills any that remain empty.
	_ = envdecode.Decode(&cfg)
	return cfg
}

// Option configures a Channel.
type Option func(*Channel)

// WithClient uses an existing client instead of dialing Config.Addr. The
// channel does not close a client it did not create.
func WithClient(client redis.UniversalClient) Option {
	return func(c *Channel) { c.client = client }
}

// WithLogger sets the logger used to report malformed payloads.
func WithLogger(log *slog.Logger) Option {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

// Channel is a broadcast channel over a single Redis pub/sub topic.
type Channel struct {
	client     redis.UniversalClient
	ownsClient bool
	topic      string
	log        *slog.Logger

	fanout channel.Fanout

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
	done   chan struct{}
}

var _ channel.Channel = (*Channel)(nil)

// New creates a Channel and verifies connectivity.
func New(ctx context.Context, cfg Config, opts ...Option) (*Channel, error) {
	c := &Channel{log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = defaultAddr
		}
		c.client = redis.NewClient(&redis.Options{Addr: addr})
		c.ownsClient = true
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
	}
	c.topic = prefix + topic

	if err := c.client.Ping(ctx).Err(); err != nil {
		if c.ownsClient {
			_ = c.client.Close()
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// NewFromEnv builds a Channel using ConfigFromEnv.
func NewFromEnv(ctx context.Context, opts ...Option) (*Channel, error) {
	return New(ctx, ConfigFromEnv(), opts...)
}

// Topic returns the fully prefixed pub/sub topic.
func (c *Channel) Topic() string { return c.topic }

// Post implements channel.Channel.
func (c *Channel) Post(ctx context.Context, env channel.Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return channel.ErrClosed
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := c.client.Publish(ctx, c.topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.topic, err)
	}
	return nil
}

// Listen implements channel.Channel. The first listener establishes the
// subscription; Listen returns only once Redis has confirmed it, so
// envelopes published afterwards are guaranteed to be observed.
func (c *Channel) Listen(fn channel.Listener) (func(), error) {
	if err := c.ensureSubscribed(); err != nil {
		return nil, err
	}
	return c.fanout.Add(fn)
}

func (c *Channel) ensureSubscribed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return channel.ErrClosed
	}
	if c.pubsub != nil {
		return nil
	}

	ctx := context.Background()
	ps := c.client.Subscribe(ctx, c.topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", c.topic, err)
	}
	c.pubsub = ps
	c.done = make(chan struct{})
	go c.receive(ps.Channel(), c.done)
	return nil
}

func (c *Channel) receive(msgs <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range msgs {
		var env channel.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.log.Warn("channel.redis.decode.fail", slog.String("topic", c.topic), slog.String("err", err.Error()))
			continue
		}
		c.fanout.Deliver(env)
	}
}

// Close unsubscribes, drops every listener and, when the channel created its
// own client, closes it.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ps, done := c.pubsub, c.done
	c.mu.Unlock()

	var err error
	if ps != nil {
		err = ps.Close()
		<-done
	}
	c.fanout.Close()
	if c.ownsClient {
		if cerr := c.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
