package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Get("/ws/users/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" || userID != c.Params("id") {
			return fiber.NewError(fiber.StatusForbidden, "cannot subscribe to another user's events")
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		serve(c, hub, UserTopic(c.Params("id")))
	}))

	r.Get("/ws/sessions/:id", authMiddleware, websocket.New(func(c *websocket.Conn) {
		serve(c, hub, SessionTopic(c.Params("id")))
	}))
}

func serve(c *websocket.Conn, hub *Hub, topic string) {
	client := hub.Register(topic)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	hub.Unregister(client)
	<-done
}
