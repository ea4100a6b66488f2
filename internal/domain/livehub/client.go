package livehub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one authenticated WebSocket connection, attached to its
// tenant's general channel plus whatever it has explicitly subscribed to
// (spec.md §4.5 "Client connection lifecycle").
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	tenantID string
	channels map[string]bool
}

// NewClient constructs a Client bound to hub over conn.
func NewClient(id, tenantID string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		id:       id,
		tenantID: tenantID,
		channels: make(map[string]bool),
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// TenantID returns the tenant the client authenticated as.
func (c *Client) TenantID() string { return c.tenantID }

// ReadPump pumps control messages from the WebSocket connection to the
// hub's subscribe/unsubscribe handling. It must run in its own goroutine;
// it returns (and unregisters the client) when the connection closes or a
// ping goes unanswered (spec.md §4.5 "Heartbeat").
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd ClientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.writeFrame(ErrorFrame{Type: "error", Detail: "invalid command format"})
			continue
		}
		c.handleCommand(cmd)
	}
}

// WritePump pumps frames from the hub to the WebSocket connection and
// sends periodic pings. It must run in its own goroutine and returns when
// the send channel is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd ClientCommand) {
	switch cmd.Action {
	case "subscribe":
		channel := c.hub.Subscribe(c, cmd.Channel)
		c.writeFrame(SubscribedFrame{Type: "subscribed", Channel: channel})
	case "unsubscribe":
		channel := c.hub.Unsubscribe(c, cmd.Channel)
		c.writeFrame(SubscribedFrame{Type: "unsubscribed", Channel: channel})
	default:
		c.writeFrame(ErrorFrame{Type: "error", Detail: "unknown action: " + cmd.Action})
	}
}

func (c *Client) writeFrame(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
