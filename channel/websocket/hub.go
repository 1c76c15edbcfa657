// Package websocket provides a channel.Channel that spans a network. A Hub
// accepts WebSocket connections and rebroadcasts every frame it receives to
// all connected peers and to its own in-process listeners; a Client dials a
// Hub and behaves like any other channel endpoint.
//
// Each connection is bound to one envelope source: the identity returned by
// the WithPeerIdentity callback, or else the source of its first frame. The
// hub drops frames whose source differs from that binding, and never lets a
// peer bind a source already held by another peer or by an in-process
// endpoint.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ggoodman/mcp-apps-go/channel"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub's logger.
func WithHubLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithCheckOrigin sets the origin check used during the upgrade. By default
// only same-origin requests are accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// ErrSourceClaimed is returned by Hub.Post when a connected peer is already
// bound to the envelope's source.
var ErrSourceClaimed = errors.New("source bound to another endpoint")

// WithReservedSources reserves sources for in-process endpoints before they
// first post. Peers may never bind them.
func WithReservedSources(sources ...string) HubOption {
	return func(h *Hub) {
		for _, s := range sources {
			h.local[s] = struct{}{}
		}
	}
}

// WithPeerIdentity binds each connection to the source returned by fn for its
// upgrade request. A request fn rejects is refused with 403.
func WithPeerIdentity(fn func(r *http.Request) (string, error)) HubOption {
	return func(h *Hub) { h.identify = fn }
}

// Hub is a WebSocket broadcast point. It implements http.Handler for peers
// and channel.Channel for in-process endpoints.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger
	identify func(r *http.Request) (string, error)
	fanout   channel.Fanout

	mu     sync.Mutex
	peers  map[*peer]struct{}
	claims map[string]*peer
	local  map[string]struct{}
	closed bool
}

type peer struct {
	ws   *websocket.Conn
	send chan []byte

	// source is guarded by Hub.mu.
	source string
}

var (
	_ channel.Channel = (*Hub)(nil)
	_ http.Handler    = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		log:    slog.Default(),
		peers:  make(map[*peer]struct{}),
		claims: make(map[string]*peer),
		local:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := &peer{send: make(chan []byte, sendBuffer)}

	if h.identify != nil {
		source, err := h.identify(r)
		if err != nil || source == "" {
			h.log.WarnContext(r.Context(), "channel.ws.identify.fail", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if !h.bind(p, source) {
			h.log.WarnContext(r.Context(), "channel.ws.identify.taken", slog.String("remote", r.RemoteAddr), slog.String("source", source))
			http.Error(w, "source already connected", http.StatusConflict)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "channel.ws.upgrade.fail", slog.String("err", err.Error()))
		h.release(p)
		return
	}
	p.ws = ws

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.release(p)
		_ = ws.Close()
		return
	}
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	h.log.DebugContext(r.Context(), "channel.ws.peer.connected", slog.String("remote", r.RemoteAddr))

	go p.writePump()
	h.readPump(p)
}

// readPump reads frames from a peer and rebroadcasts those carrying the
// peer's bound source.
func (h *Hub) readPump(p *peer) {
	defer h.drop(p)

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			return
		}
		var env channel.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Warn("channel.ws.decode.fail", slog.String("err", err.Error()))
			continue
		}
		if !h.bind(p, env.Source) {
			h.log.Warn("channel.ws.peer.source_rejected", slog.String("source", env.Source), slog.String("remote", p.ws.RemoteAddr().String()))
			continue
		}
		h.broadcast(env, data)
	}
}

// bind reports whether p may post as source. A peer not yet bound takes
// source if no other endpoint holds it.
func (h *Hub) bind(p *peer, source string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if source == "" {
		return false
	}
	if p.source != "" {
		return p.source == source
	}
	if _, ok := h.local[source]; ok {
		return false
	}
	if _, ok := h.claims[source]; ok {
		return false
	}
	p.source = source
	h.claims[source] = p
	return true
}

func (h *Hub) release(p *peer) {
	h.mu.Lock()
	if p.source != "" && h.claims[p.source] == p {
		delete(h.claims, p.source)
	}
	h.mu.Unlock()
}

// writePump writes queued frames to the peer.
func (p *peer) writePump() {
	defer p.ws.Close()

	for data := range p.send {
		_ = p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := p.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = p.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"),
		time.Now().Add(time.Second),
	)
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	if p.source != "" && h.claims[p.source] == p {
		delete(h.claims, p.source)
	}
	h.mu.Unlock()
	if ok {
		close(p.send)
	}
}

func (h *Hub) broadcast(env channel.Envelope, frame []byte) {
	h.mu.Lock()
	for p := range h.peers {
		select {
		case p.send <- frame:
		default:
			h.log.Warn("channel.ws.peer.overflow", slog.String("source", env.Source))
		}
	}
	h.mu.Unlock()

	h.fanout.Deliver(env)
}

// Post implements channel.Channel. The envelope's source becomes reserved
// for in-process endpoints.
func (h *Hub) Post(ctx context.Context, env channel.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	closed := h.closed
	_, claimed := h.claims[env.Source]
	if !closed && !claimed {
		h.local[env.Source] = struct{}{}
	}
	h.mu.Unlock()
	if closed {
		return channel.ErrClosed
	}
	if claimed {
		return fmt.Errorf("%w: %q", ErrSourceClaimed, env.Source)
	}

	env.Data = slices.Clone(env.Data)
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	h.broadcast(env, frame)
	return nil
}

// Listen implements channel.Channel.
func (h *Hub) Listen(fn channel.Listener) (func(), error) {
	return h.fanout.Add(fn)
}

// Peers reports the number of connected peers.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects every peer and drops every local listener.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := h.peers
	h.peers = map[*peer]struct{}{}
	h.claims = map[string]*peer{}
	h.mu.Unlock()

	for p := range peers {
		close(p.send)
	}
	h.fanout.Close()
	return nil
}
