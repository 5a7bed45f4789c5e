package in

import (
	"context"

	"github.com/mailkeeper/agent/core/domain"
)

// FeedbackIntakeService records user corrections (§4.Q).
type FeedbackIntakeService interface {
	RecordFeedback(ctx context.Context, fb *domain.Feedback) error

	// FeedbackMap returns the latest-correction-per-sender map consumed by
	// the Reasoning Engine (§4.H step 1).
	FeedbackMap(ctx context.Context, userID string) (domain.FeedbackMap, error)
}
