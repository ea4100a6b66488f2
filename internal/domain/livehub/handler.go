package livehub

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated HTTP requests to WebSocket connections and
// registers them with a Hub.
type Handler struct {
	hub  *Hub
	auth Authenticator
	log  *logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, auth Authenticator, log *logger.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, log: log}
}

// ServeHTTP authenticates the request, upgrades it, and hands the
// resulting client off to the hub's register channel before starting its
// read/write pumps in their own goroutines.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Warn("live channel authentication failed", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("live channel upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	client := NewClient(uuid.New().String(), tenantID, h.hub, conn)
	h.log.Info("live channel client connected", "client_id", client.id, "tenant_id", tenantID, "remote_addr", r.RemoteAddr)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
