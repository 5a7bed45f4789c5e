package in

import (
	"context"

	"github.com/mailkeeper/agent/core/domain"
)

// ActionQueueService enqueues and executes side-effects (§4.M).
type ActionQueueService interface {
	// Enqueue writes a new pending ActionRequest.
	Enqueue(ctx context.Context, userID string, messageID *string, action domain.Action, params map[string]interface{}) (requestID string, err error)

	// ExecuteNext claims and executes up to one pending request, returning
	// false if none were pending. Retries transient failures per §7;
	// client errors fail immediately.
	ExecuteNext(ctx context.Context) (executed bool, err error)

	// ExecuteByID claims and executes a specific request, used by the
	// worker-pool job handler for a dequeued ActionExecuteJob.
	ExecuteByID(ctx context.Context, requestID string) error
}
