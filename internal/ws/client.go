package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatdesk/internal/logger"
)

// Settings are the per-connection tuning knobs, fed from config. Zero fields
// fall back to the defaults.
type Settings struct {
	SendBuffer  int
	WriteWait   time.Duration
	PongWait    time.Duration
	MaxMsgBytes int64
}

func DefaultSettings() Settings {
	return Settings{
		SendBuffer:  64,
		WriteWait:   10 * time.Second,
		PongWait:    60 * time.Second,
		MaxMsgBytes: 64 << 10,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.SendBuffer <= 0 {
		s.SendBuffer = d.SendBuffer
	}
	if s.WriteWait <= 0 {
		s.WriteWait = d.WriteWait
	}
	if s.PongWait <= 0 {
		s.PongWait = d.PongWait
	}
	if s.MaxMsgBytes <= 0 {
		s.MaxMsgBytes = d.MaxMsgBytes
	}
	return s
}

// pingPeriod must stay under PongWait or the peer times out between pings.
func (s Settings) pingPeriod() time.Duration {
	return s.PongWait * 9 / 10
}

// MessageSink handles client-originated events (sending a message, marking a
// chat read). Implemented by the message handler; kept as an interface so the
// hub package stays free of repository imports.
type MessageSink interface {
	HandleSend(ctx context.Context, senderID string, p SendMessagePayload) error
	HandleMarkRead(ctx context.Context, readerID string, p MarkReadPayload) error
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	sink     MessageSink
	settings Settings
	send     chan OutgoingMessage
	done     chan struct{}

	selectChat func(ctx context.Context, chatID string)
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, sink MessageSink, settings Settings) *Client {
	settings = settings.withDefaults()
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		sink:     sink,
		settings: settings,
		send:     make(chan OutgoingMessage, settings.SendBuffer),
		done:     make(chan struct{}),
	}
}

// OnSelectChat registers the hook invoked when the client selects a
// conversation. Must be set before Start.
func (c *Client) OnSelectChat(fn func(ctx context.Context, chatID string)) {
	c.selectChat = fn
}

// Done is closed when the connection goes away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Deliver queues a message for this connection only, bypassing the per-user
// fan-out. Dropped when the buffer is full or the client already left.
func (c *Client) Deliver(msg OutgoingMessage) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.userID][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Start registers the client and launches its pumps.
func (c *Client) Start() {
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.settings.MaxMsgBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read user=%s: %v", c.userID, err)
			}
			return
		}
		var in IncomingMessage
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError("malformed message")
			continue
		}
		c.dispatch(in)
	}
}

func (c *Client) dispatch(in IncomingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch in.Type {
	case EventNewMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("malformed payload")
			return
		}
		if err := c.sink.HandleSend(ctx, c.userID, p); err != nil {
			logger.Errorf("ws send user=%s chat=%s: %v", c.userID, p.ChatID, err)
			c.sendError("could not send message")
		}
	case EventMessageRead:
		var p MarkReadPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("malformed payload")
			return
		}
		if err := c.sink.HandleMarkRead(ctx, c.userID, p); err != nil {
			logger.Errorf("ws mark read user=%s chat=%s: %v", c.userID, p.ChatID, err)
		}
	case EventSelectChat:
		var p SelectChatPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ChatID == "" {
			c.sendError("malformed payload")
			return
		}
		if c.selectChat != nil {
			c.selectChat(ctx, p.ChatID)
		}
	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) sendError(msg string) {
	select {
	case c.send <- OutgoingMessage{Type: EventError, Payload: ErrorPayload{Message: msg}}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
