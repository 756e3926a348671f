package hub

import (
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait bounds each frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a subscriber may stay silent.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; subscribers only send pongs.
	maxMessageSize = 4 * 1024

	// sendBuffer is the per-client queue length.
	sendBuffer = 64
)

// Client is one status subscriber. A client with topics only receives
// events whose type equals a topic or starts with "topic.".
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan message
	topics []string
}

// ParseTopics splits a comma-separated topic list, e.g. the "events" query
// parameter. Empty input subscribes to everything.
func ParseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// NewClient creates a client for conn and registers it with the hub.
func NewClient(hub *Hub, conn *websocket.Conn, topics ...string) *Client {
	client := newClient(hub, topics)
	client.conn = conn

	select {
	case hub.register <- client:
	case <-hub.done:
		close(client.send)
	}
	return client
}

func newClient(hub *Hub, topics []string) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		send:   make(chan message, sendBuffer),
		topics: topics,
	}
}

// ID returns the client identifier used in logs.
func (c *Client) ID() string {
	return c.id
}

// wants reports whether eventType matches the client's topics.
func (c *Client) wants(eventType string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, t := range c.topics {
		if eventType == t || strings.HasPrefix(eventType, t+".") {
			return true
		}
	}
	return false
}

// Run starts the writer and blocks reading until the connection closes.
// Call it from the websocket handler.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

// readLoop only watches for disconnects and pongs.
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("subscriber read failed", "client", c.id, "error", err)
			}
			return
		}
	}
}

// writeLoop owns all writes to the connection.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.hub.logger.Debug("subscriber write failed", "client", c.id, "type", msg.eventType, "error", err)
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
