package http

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
)

// MessagesHandler is a read-through over the document store's messages
// collection (§4.B, §4.R). Keys match the pipeline's messageDocID
// convention (userID:messageID).
type MessagesHandler struct {
	store out.DocumentStore
}

func NewMessagesHandler(store out.DocumentStore) *MessagesHandler {
	return &MessagesHandler{store: store}
}

func (h *MessagesHandler) Register(router fiber.Router) {
	router.Get("/messages", h.list)
	router.Get("/messages/:id", h.get)
}

func (h *MessagesHandler) list(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user id")
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	messages := make([]domain.Message, 0, limit)
	order := []out.OrderBy{{Field: "received_at", Descending: true}}
	filter := out.Filter{"user_id": userID}

	err := h.store.Where(c.Context(), out.CollectionMessages, filter, order, limit, func(raw []byte) error {
		var msg domain.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list messages")
	}

	return c.JSON(fiber.Map{"messages": messages, "count": len(messages)})
}

func (h *MessagesHandler) get(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user id")
	}
	messageID := c.Params("id")

	var msg domain.Message
	err := h.store.GetByID(c.Context(), out.CollectionMessages, userID+":"+messageID, &msg)
	if err != nil {
		if apperr.GetHTTPStatus(err) == fiber.StatusNotFound {
			return fiber.NewError(fiber.StatusNotFound, "message not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load message")
	}

	return c.JSON(msg)
}
