package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"credit-underwriting-api/middleware"
	"credit-underwriting-api/services"
)

// The hub is constructed in main and injected here so its lifecycle is
// explicit instead of living as hidden package state in the services layer.
var notificationHub *services.NotificationHub

// UseNotificationHub injects the connection registry used by all controllers.
func UseNotificationHub(hub *services.NotificationHub) {
	notificationHub = hub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware on the REST
	// surface; the websocket handshake authenticates with the JWT instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NotificationSocket upgrades the connection and keeps it registered until
// the client goes away. Browsers cannot set an Authorization header on a
// websocket handshake, so the token travels as a query parameter.
func NotificationSocket(c *gin.Context) {
	token := c.Query("token")
	claims, err := middleware.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed for user %d: %v", claims.UserID, err)
		return
	}

	connID := notificationHub.Register(claims.UserID, conn)
	defer func() {
		notificationHub.Unregister(claims.UserID, connID)
		conn.Close()
	}()

	// Drain client frames; the server only pushes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
