package handlers

import (
	"github.com/8gudbits/WhisperChat/internal/models"
	"github.com/8gudbits/WhisperChat/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// WebSocketHandler runs the per-connection event loop.
func WebSocketHandler(chat *services.ChatService, conns *ConnRegistry) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		connID := uuid.New().String()

		conns.Register(connID, c)
		chat.Connect(connID)

		defer func() {
			chat.Disconnect(connID)
			conns.Unregister(connID)
			c.Close()
		}()

		conns.SendTo(connID, models.EventConnected, models.WelcomeEvent{
			Message: "Welcome to the chat server",
		})

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("Read error on %s: %v", connID, err)
				}
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}
			HandleEvent(chat, conns, connID, msg)
		}
	})
}

// WSUpgradeMiddleware upgrades the connection to WebSocket
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
