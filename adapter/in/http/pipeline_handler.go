package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mailkeeper/agent/core/port/out"
)

// PipelineHandler submits process_inbox jobs (§4.L, §4.R). It publishes the
// exact out.ProcessInboxJob shape the worker pool consumes (§4.S), so an
// API-triggered run and a scheduler-triggered run share one code path.
type PipelineHandler struct {
	producer out.MessageProducer
}

func NewPipelineHandler(producer out.MessageProducer) *PipelineHandler {
	return &PipelineHandler{producer: producer}
}

func (h *PipelineHandler) Register(router fiber.Router) {
	router.Post("/pipeline/run", h.run)
}

type runPipelineRequest struct {
	MaxResults int `json:"max_results"`
}

func (h *PipelineHandler) run(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user id")
	}

	var req runPipelineRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 25
	}

	job := &out.ProcessInboxJob{UserID: userID, MaxResults: req.MaxResults}
	if err := h.producer.PublishProcessInbox(c.Context(), job); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to queue pipeline run")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "user_id": userID})
}
