package http

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mailkeeper/agent/adapter/out/realtime"
)

// EventsHandler exposes the Realtime Broadcaster (§4.P) over SSE (§4.R).
type EventsHandler struct {
	hub *realtime.SSEHub
	log zerolog.Logger
}

func NewEventsHandler(hub *realtime.SSEHub, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, log: log.With().Str("component", "events_handler").Logger()}
}

func (h *EventsHandler) Register(router fiber.Router) {
	router.Get("/events/stream", h.stream)
}

func (h *EventsHandler) stream(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user id")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	client := h.hub.CreateClient(userID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.hub.RemoveClient(client)

		ticker := time.NewTicker(client.HeartbeatInterval())
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}
				data, err := realtime.SerializeEvent(event)
				if err != nil {
					continue
				}
				if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-client.Done:
				return
			}
		}
	})

	return nil
}
