package websocket

import (
	"net/http"

	"Scoreboard/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request. The JWT middleware stores the
// verified user id under "userId".
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userId")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			utils.Log.Warn("upgrade failed", "user", userID, "err", err)
			return
		}

		client := NewClient(userID, conn, hub, hub.queueSize)
		hub.Register(client)

		go client.writePump()
		go client.readPump()
	}
}

// Disconnect closes the caller's live connection, for clients that leave
// without a clean close handshake.
func Disconnect(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userId")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if !hub.Remove(userID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no live connection"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
