// Package livehub implements the Live Channel Hub: per-tenant channel
// namespaces, client registration, pub/sub ingress, fan-out, heartbeat and
// stale-connection cleanup. Grounded on the teacher's
// internal/infrastructure/websocket/hub.go (register/unregister/broadcast
// channel shape, the forward+inverse index pattern from its
// byWorkflowID/byExecutionID maps, generalized here to an arbitrary
// channel-name string instead of two fixed dimensions) and
// original_source's services/websocket_manager.py for the channel naming
// and multi-process Redis pub/sub fan-out.
package livehub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

// broadcastMsg is one fan-out job: a channel name and the already-encoded
// frame to deliver to every client subscribed to it.
type broadcastMsg struct {
	channel string
	payload []byte
}

// Hub owns the process-local set of WebSocket connections and their
// channel subscriptions, and bridges to the shared Redis pub/sub transport
// for multi-process fan-out (spec.md §4.5 "Multi-process fan-out").
type Hub struct {
	namespace string

	clients    map[*Client]bool
	byChannel  map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg

	redis *redis.Client
	log   *logger.Logger

	mu sync.RWMutex
}

// New constructs a Hub. redisClient may be nil in single-process
// deployments/tests — Publish then only fans out to process-local clients.
func New(namespace string, redisClient *redis.Client, log *logger.Logger) *Hub {
	return &Hub{
		namespace:  namespace,
		clients:    make(map[*Client]bool),
		byChannel:  make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
		redis:      redisClient,
		log:        log,
	}
}

// Namespace returns the hub's channel namespace prefix.
func (h *Hub) Namespace() string { return h.namespace }

// Run starts the hub's local event loop (register/unregister/broadcast)
// and, if a Redis client is configured, a subscriber goroutine that
// forwards cluster-wide publishes into the same local broadcast path.
// Run blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.redis != nil {
		go h.subscribeLoop(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.deliverLocal(msg)
		}
	}
}

// Register attaches a connected client to the hub and its tenant's general
// channel. The connection gauge's only increment happens here — exactly
// once per accept (spec.md §4.5 "Client connection lifecycle").
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister detaches a client from the hub and every channel it was
// subscribed to. The connection gauge's only decrement happens here,
// exactly once regardless of how many channels the client had joined
// (spec.md §4.5 invariant).
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	atomic.AddInt64(&connectedGauge, 1)
	h.subscribeLocked(c, GeneralChannel(h.namespace, c.tenantID))
	h.log.Info("live channel client connected", "client_id", c.id, "tenant_id", c.tenantID, "total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for ch := range c.channels {
		h.removeFromChannelLocked(c, ch)
	}
	close(c.send)
	atomic.AddInt64(&connectedGauge, -1)
	h.log.Info("live channel client disconnected", "client_id", c.id, "tenant_id", c.tenantID, "total_clients", len(h.clients))
}

// Subscribe adds client c to channel, enforcing the tenant prefix.
func (h *Hub) Subscribe(c *Client, suffix string) string {
	channel := RewriteSuffix(h.namespace, c.tenantID, suffix)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(c, channel)
	return channel
}

// Unsubscribe removes client c from channel.
func (h *Hub) Unsubscribe(c *Client, suffix string) string {
	channel := RewriteSuffix(h.namespace, c.tenantID, suffix)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromChannelLocked(c, channel)
	return channel
}

func (h *Hub) subscribeLocked(c *Client, channel string) {
	if h.byChannel[channel] == nil {
		h.byChannel[channel] = make(map[*Client]bool)
	}
	h.byChannel[channel][c] = true
	c.channels[channel] = true
}

func (h *Hub) removeFromChannelLocked(c *Client, channel string) {
	delete(c.channels, channel)
	if set, ok := h.byChannel[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byChannel, channel)
		}
	}
}

// Publish fans a JSON-encodable frame out to channel: locally to every
// process-local subscriber, and (if Redis is configured) to the shared
// bus so other processes' local subscribers receive it too
// (spec.md §4.5 "Multi-process fan-out").
func (h *Hub) Publish(ctx context.Context, channel string, frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	// With Redis configured, subscribeLoop echoes every publish (including
	// our own) back into h.broadcast, so local delivery must come from
	// that echo, not from a direct push here too — otherwise every local
	// subscriber receives the frame twice (spec.md §8 "single delivery").
	if h.redis == nil {
		h.broadcast <- broadcastMsg{channel: channel, payload: payload}
		return nil
	}
	if err := h.redis.Publish(ctx, channel, payload).Err(); err != nil {
		h.log.WarnContext(ctx, "live channel pub/sub publish failed", "channel", channel, "error", err)
	}
	return nil
}

// deliverLocal fans payload out to every locally-registered client
// subscribed to msg.channel. A send that can't complete immediately marks
// the client stale and removes it from every channel and the client index
// (spec.md §4.5 "Stale cleanup").
func (h *Hub) deliverLocal(msg broadcastMsg) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byChannel[msg.channel]))
	for c := range h.byChannel[msg.channel] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []*Client
	for _, c := range targets {
		select {
		case c.send <- msg.payload:
		default:
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.log.Warn("live channel client send buffer full, evicting", "client_id", c.id)
		h.unregisterClient(c)
	}
}

// subscribeLoop subscribes to the namespace-wide pattern and forwards
// every incoming cluster message into the local broadcast path
// (spec.md §4.5 "Multi-process fan-out": "subscribes to the pattern
// `<ns>:*`").
func (h *Hub) subscribeLoop(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, h.namespace+":*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast <- broadcastMsg{channel: msg.Channel, payload: []byte(msg.Payload)}
		}
	}
}

// ClientCount reports the number of locally-registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelSubscriberCount reports how many local clients are subscribed to
// channel, used by tests asserting the "disconnected client receives
// nothing and does not appear in the channel set" property (spec.md §8).
func (h *Hub) ChannelSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byChannel[channel])
}
