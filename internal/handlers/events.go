package handlers

import (
	"log/slog"

	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type EventsHandler struct {
	hub *events.Hub
}

func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *EventsHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Stream pushes alert and workflow lifecycle events to the client until it
// disconnects.
func (h *EventsHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		ch, cancel := h.hub.Subscribe()
		defer cancel()

		// Reader goroutine: detects disconnects, discards client frames.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := c.WriteJSON(ev); err != nil {
					slog.Debug("Event stream write failed", "error", err)
					return
				}
			case <-closed:
				return
			}
		}
	})
}
