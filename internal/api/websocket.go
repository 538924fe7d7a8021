package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mblarson/omnihome/internal/automation"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Event channels. A new client is subscribed to all of them.
const (
	EventDeviceUpdated  = "device.updated"
	EventDeviceCreated  = "device.created"
	EventDeviceDeleted  = "device.deleted"
	EventDeviceList     = "device.list"
	EventProviderLink   = "provider.link"
	EventStorageError   = "storage.error"
	EventSceneActivated = automation.EventSceneActivated
)

// EventChannels lists every channel the hub publishes on.
var EventChannels = []string{
	EventDeviceUpdated,
	EventDeviceCreated,
	EventDeviceDeleted,
	EventDeviceList,
	EventProviderLink,
	EventStorageError,
	EventSceneActivated,
}

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// DeviceEvent is the payload of the device channels.
type DeviceEvent struct {
	Device  *device.Device  `json:"device,omitempty"`
	Devices []device.Device `json:"devices,omitempty"`
	ID      string          `json:"id,omitempty"`
	Source  string          `json:"source"`
}

// Hub fans events out to connected dashboards.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected dashboard.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	userID        string
	mu            sync.RWMutex
}

// Origin checks are left to the CORS middleware and the ticket.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub. Only the caller that removes
// the client closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends an event to all clients subscribed to channel.
// Client locks are never taken while the hub lock is held.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close() //nolint:errcheck // shutdown path
		}
		delete(h.clients, client)
	}
}

// newClient returns a client subscribed to every event channel.
func (h *Hub) newClient(conn *websocket.Conn, userID string) *WSClient {
	subs := make(map[string]struct{}, len(EventChannels))
	for _, ch := range EventChannels {
		subs[ch] = struct{}{}
	}
	return &WSClient{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
		userID:        userID,
	}
}

// broadcastDeviceChange relays a store change to the hub.
func (s *Server) broadcastDeviceChange(c device.Change) {
	switch c.Kind {
	case device.ChangeUpdated:
		s.hub.Broadcast(EventDeviceUpdated, DeviceEvent{Device: c.Device, Source: c.Source})
	case device.ChangeCreated:
		s.hub.Broadcast(EventDeviceCreated, DeviceEvent{Device: c.Device, Source: c.Source})
	case device.ChangeDeleted:
		ev := DeviceEvent{Source: c.Source}
		if c.Device != nil {
			ev.ID = c.Device.ID
		}
		s.hub.Broadcast(EventDeviceDeleted, ev)
	case device.ChangeReplaced:
		s.hub.Broadcast(EventDeviceList, DeviceEvent{Devices: c.Devices, Source: c.Source})
	}
}

// handleWebSocket upgrades to a WebSocket. Browsers cannot set headers on
// the upgrade request, so auth is a one-time ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.ticketClaims(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.newClient(conn, claims.Subject)
	s.hub.Register(client)

	// The current list, so the dashboard does not wait for the next change.
	client.sendResponse("", WSTypeEvent, DeviceEvent{Devices: s.devices.Devices(), Source: device.SourceSync}, EventDeviceList)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // connection already failing
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any message counts.
		//nolint:errcheck // best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // writer exiting
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.changeSubscriptions(msg, true)
	case WSTypeUnsubscribe:
		c.changeSubscriptions(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil, "")
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// changeSubscriptions adds or removes channels. Unknown channels are
// rejected.
func (c *WSClient) changeSubscriptions(msg WSMessage, add bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		c.sendError(msg.ID, "payload must list channels")
		return
	}
	for _, ch := range sub.Channels {
		if !slices.Contains(EventChannels, ch) {
			c.sendError(msg.ID, "unknown channel: "+ch)
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if !add {
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels}, "")
}

// trySend queues data without blocking. A full buffer drops the message;
// a channel closed during shutdown is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any, eventType string) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message}, "")
}
