package out

import "context"

// JobType names the three job families the worker pool runs (§4.S).
type JobType string

const (
	JobProcessInbox    JobType = "process_inbox"
	JobActionExecute   JobType = "action_execute"
	JobSchedulerTick   JobType = "scheduler_tick"
)

// ProcessInboxJob triggers §4.L for one user, from either an API request
// (§4.R) or a scheduler tick (§4.N) — both submit this exact shape so there
// is exactly one code path.
type ProcessInboxJob struct {
	UserID     string `json:"user_id"`
	MaxResults int    `json:"max_results"`
}

// ActionExecuteJob asks the worker to claim and run one pending
// ActionRequest (§4.M). RequestID is advisory: the worker still claims by
// query+update against the document store, never by trusting this hint
// alone.
type ActionExecuteJob struct {
	RequestID string `json:"request_id"`
}

// SchedulerTickJob fires one autonomous task kind for one user (§4.N).
type SchedulerTickJob struct {
	UserID string `json:"user_id"`
	Task   string `json:"task"` // auto_archive | daily_summary | follow_up | re_evaluate_unknowns | meeting_prep
}

// MessageProducer publishes jobs onto the transport (§4.M "Concrete
// transport": a Redis Stream backing the worker pool's claim queue).
type MessageProducer interface {
	PublishProcessInbox(ctx context.Context, job *ProcessInboxJob) error
	PublishActionExecute(ctx context.Context, job *ActionExecuteJob) error
	PublishSchedulerTick(ctx context.Context, job *SchedulerTickJob) error
}

// QueueMessage is one dequeued transport message; Ack/Nack settle it.
type QueueMessage struct {
	JobType JobType
	Payload []byte
	Ack     func(ctx context.Context) error
	Nack    func(ctx context.Context) error
}

// MessageConsumer drains the transport for the worker pool (§4.S).
type MessageConsumer interface {
	Consume(ctx context.Context) (<-chan QueueMessage, error)
	Close(ctx context.Context) error
}
