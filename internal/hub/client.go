package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one websocket connection attached to a hub channel.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	channel string
	userID  uint // 0 for anonymous viewers
	send    chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, channel string, userID uint) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		channel: channel,
		userID:  userID,
		send:    make(chan []byte, sendBuffer),
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// Send queues payload without blocking. It must be called before the client
// is registered or from the hub.
func (c *Client) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ReadPump keeps the read deadline moving with pongs and detects disconnects.
// Anything the peer sends is discarded; game changes go through the HTTP API.
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "channel": c.channel})
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		logCtx.Debug("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			}
			return
		}
	}
}

// WritePump writes queued payloads and pings the peer every pingPeriod.
func (c *Client) WritePump() {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "channel": c.channel})
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Debug("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) Channel() string { return c.channel }
func (c *Client) UserID() uint    { return c.userID }
func (c *Client) CloseConn()      { c.conn.Close() }
