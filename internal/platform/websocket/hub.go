// Package websocket pushes events to connected clients. Clients hold a set
// of topics; a topic is either one subject ("subject:<id>") or the clinical
// staff feed ("staff"). Which topics a client may hold is decided by the
// caller's identity at connect time and on every subscribe request.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/platform/auth"
)

const (
	TopicStaff   = "staff"
	subjectTopic = "subject:"

	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SubjectTopic is the topic carrying one subject's events.
func SubjectTopic(id uuid.UUID) string { return subjectTopic + id.String() }

// Event is a notification sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte

	// allowed decides whether this client may subscribe to a topic.
	allowed func(topic string) bool
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "ws-hub").Logger(),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds the topics the client is allowed to hold and returns the
// ones it was refused.
func (h *Hub) Subscribe(client *Client, topics []string) (denied []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if client.allowed != nil && !client.allowed(topic) {
			denied = append(denied, topic)
			continue
		}
		if contains(client.Topics, topic) {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if contains(topics, t) {
			h.removeLocked(t, client)
			continue
		}
		remaining = append(remaining, t)
	}
	client.Topics = remaining
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// ProcessMessage dispatches a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) []string {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Publish sends an event to every client subscribed to its topic. Clients
// whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[event.Topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", event.Topic).Msg("client buffer full, event dropped")
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func contains(list []string, s string) bool {
	for _, t := range list {
		if t == s {
			return true
		}
	}
	return false
}

// topicPolicy builds the subscribe check for the caller in ctx. Staff may
// hold any topic; a subject may only hold its own.
func topicPolicy(ctx context.Context) func(string) bool {
	return func(topic string) bool {
		if topic == TopicStaff {
			return auth.HasRole(ctx, auth.RoleProvider)
		}
		id, err := uuid.Parse(strings.TrimPrefix(topic, subjectTopic))
		if err != nil || !strings.HasPrefix(topic, subjectTopic) {
			return false
		}
		return auth.CanAccessSubject(ctx, id)
	}
}

// initialTopics are the topics a new connection starts with.
func initialTopics(ctx context.Context) []string {
	var topics []string
	if self, ok := auth.SubjectFromContext(ctx); ok {
		topics = append(topics, SubjectTopic(self))
	}
	if auth.HasRole(ctx, auth.RoleProvider) {
		topics = append(topics, TopicStaff)
	}
	return topics
}

// Handler upgrades HTTP requests to WebSocket connections on the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler binds a handler to hub. An empty allowedOrigins accepts any
// origin; requests without an Origin header are not from browsers and are
// always accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowedOrigins) == 0 || origin == "" {
					return true
				}
				return contains(allowedOrigins, origin)
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/alerts", wsh.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client with its
// initial topics, and starts the read and write pumps.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	topics := initialTopics(ctx)
	if len(topics) == 0 {
		return echo.NewHTTPError(http.StatusForbidden, "no alert topics available for this caller")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:      uuid.NewString(),
		Topics:  topics,
		Send:    make(chan []byte, sendBuffer),
		allowed: topicPolicy(ctx),
	}
	wsh.hub.Register(client)
	wsh.hub.logger.Debug().
		Str("client_id", client.ID).
		Str("user_id", auth.UserIDFromContext(ctx)).
		Strs("topics", topics).
		Msg("client connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if denied := wsh.hub.ProcessMessage(client, msg); len(denied) > 0 {
			wsh.hub.logger.Warn().Str("client_id", client.ID).Strs("topics", denied).Msg("subscription refused")
		}
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
