package worker

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
)

// Handler dispatches a pool Message to the service that owns its job type
// (§4.S). It is the one place the worker pool touches core/service — every
// job the pool runs ends up here.
type Handler struct {
	pipeline    ProcessInboxRunner
	actionQueue ActionExecuteRunner
	scheduler   SchedulerRunner
}

// ProcessInboxRunner is satisfied by *pipeline.Pipeline.
type ProcessInboxRunner interface {
	ProcessInbox(ctx context.Context, userID string, maxResults int) (int, error)
}

// ActionExecuteRunner is satisfied by *actionqueue.Queue.
type ActionExecuteRunner interface {
	ExecuteByID(ctx context.Context, requestID string) error
}

// SchedulerRunner is satisfied by *scheduler.Scheduler.
type SchedulerRunner interface {
	RunTask(ctx context.Context, userID string, task in.AutonomousTask) error
}

func NewHandler(pipeline ProcessInboxRunner, actionQueue ActionExecuteRunner, scheduler SchedulerRunner) *Handler {
	return &Handler{pipeline: pipeline, actionQueue: actionQueue, scheduler: scheduler}
}

// Process unmarshals msg.Payload into the job shape for msg.Type and calls
// the matching service. Payload carries the out.*Job JSON encoding produced
// by the producer (§4.M) or by the HTTP pipeline-run handler (§4.R).
func (h *Handler) Process(ctx context.Context, msg *Message) error {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return apperr.InternalWithError(err)
	}

	switch out.JobType(msg.Type) {
	case out.JobProcessInbox:
		var job out.ProcessInboxJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return apperr.ParseFailure("process_inbox payload", err)
		}
		_, err := h.pipeline.ProcessInbox(ctx, job.UserID, job.MaxResults)
		return err

	case out.JobActionExecute:
		var job out.ActionExecuteJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return apperr.ParseFailure("action_execute payload", err)
		}
		return h.actionQueue.ExecuteByID(ctx, job.RequestID)

	case out.JobSchedulerTick:
		var job out.SchedulerTickJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return apperr.ParseFailure("scheduler_tick payload", err)
		}
		return h.scheduler.RunTask(ctx, job.UserID, in.AutonomousTask(job.Task))

	default:
		return apperr.BadRequest("unknown job type: " + msg.Type)
	}
}
