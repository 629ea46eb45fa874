package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 4 * 1024
)

// Client is one websocket connection attached to a hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// writerDone is closed when writePump returns.
	writerDone chan struct{}
}

// NewClient registers conn with the hub. greeting is delivered before any
// broadcast that follows the registration.
func NewClient(hub *Hub, conn *websocket.Conn, greeting ...Message) *Client {
	c := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, 64),
		writerDone: make(chan struct{}),
	}
	select {
	case hub.register <- registration{client: c, greeting: greeting}:
	case <-hub.done:
		close(c.send)
	}
	return c
}

// Run pumps messages until the connection closes. Call it from the
// websocket handler; it blocks until both pumps have stopped, since the
// connection is recycled as soon as the handler returns.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
	<-c.writerDone
}

// readPump only detects disconnects and pongs.
func (c *Client) readPump() {
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
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case m, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			wsType := websocket.TextMessage
			if m.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, m.Data); err != nil {
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
