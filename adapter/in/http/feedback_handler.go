package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
)

// FeedbackHandler records user corrections (§4.Q, §4.R).
type FeedbackHandler struct {
	intake in.FeedbackIntakeService
}

func NewFeedbackHandler(intake in.FeedbackIntakeService) *FeedbackHandler {
	return &FeedbackHandler{intake: intake}
}

func (h *FeedbackHandler) Register(router fiber.Router) {
	router.Post("/feedback", h.submit)
}

type submitFeedbackRequest struct {
	MessageID         string           `json:"message_id"`
	OriginalPriority  domain.Priority  `json:"original_priority"`
	CorrectedPriority *domain.Priority `json:"corrected_priority"`
	OriginalPurpose   *domain.Purpose  `json:"original_purpose"`
	CorrectedPurpose  *domain.Purpose  `json:"corrected_purpose"`
	SenderKey         string           `json:"sender_key"`
}

func (h *FeedbackHandler) submit(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user id")
	}

	var req submitFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.MessageID == "" || req.SenderKey == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message_id and sender_key are required")
	}

	fb := &domain.Feedback{
		FeedbackID:        uuid.New().String(),
		MessageID:         req.MessageID,
		UserID:            userID,
		OriginalPriority:  req.OriginalPriority,
		CorrectedPriority: req.CorrectedPriority,
		OriginalPurpose:   req.OriginalPurpose,
		CorrectedPurpose:  req.CorrectedPurpose,
		SenderKey:         req.SenderKey,
		CreatedAt:         time.Now().UTC(),
	}

	if err := h.intake.RecordFeedback(c.Context(), fb); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to record feedback")
	}

	return c.Status(fiber.StatusCreated).JSON(fb)
}
