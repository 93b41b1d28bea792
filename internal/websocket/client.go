package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"Scoreboard/internal/utils"

	"github.com/gorilla/websocket"
)

// Client is the live transport endpoint of one authenticated user.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub

	out           *outbox
	lastHeartbeat atomic.Int64
	closeOnce     sync.Once
	pingPeriod    time.Duration
	pongWait      time.Duration
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 16
)

// keepalive derives the ping cadence from the hub's heartbeat timeout. Pings
// go out at the sweeper's rate; a peer may stay silent for the whole timeout.
func keepalive(timeout time.Duration) (ping, pong time.Duration) {
	if timeout <= 0 {
		return pingPeriod, pongWait
	}
	return timeout / 3, timeout
}

func NewClient(userID string, conn *websocket.Conn, hub *Hub, queueSize int) *Client {
	c := &Client{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		out:    newOutbox(queueSize),
	}
	var timeout time.Duration
	if hub != nil {
		timeout = hub.timeout
	}
	c.pingPeriod, c.pongWait = keepalive(timeout)
	c.touch()
	return c
}

// Send queues f for delivery. It never blocks; false means the client is closed.
func (c *Client) Send(f Frame) bool {
	return c.out.push(f)
}

// LastHeartbeat is the time of the most recent frame or pong from the client.
func (c *Client) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

func (c *Client) touch() {
	c.lastHeartbeat.Store(time.Now().UnixNano())
}

// Close cancels the outbound queue; the write pump then closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.out.close()
		if c.Conn != nil {
			// unblock a reader waiting on a silent peer
			_ = c.Conn.SetReadDeadline(time.Now())
		}
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case _, ok := <-c.out.notify:
			if !ok {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			for _, f := range c.out.drain() {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.Conn.WriteJSON(f); err != nil {
					utils.Log.Debug("write failed", "user", c.UserID, "err", err)
					c.Hub.Unregister(c)
					return
				}
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.Unregister(c)
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.Hub.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Log.Debug("read failed", "user", c.UserID, "err", err)
			}
			return
		}
		c.touch()
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.pongWait))
		c.Hub.incoming(c, raw)
	}
}
