package worker

import (
	"time"

	"github.com/google/uuid"

	"github.com/mailkeeper/agent/core/port/out"
)

// Priority levels for job scheduling.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// JobType aliases the three job families the worker pool executes (§4.M,
// §4.L, §4.N): pipeline runs, action-request execution, scheduler ticks.
type JobType = out.JobType

const (
	JobProcessInbox  = out.JobProcessInbox
	JobActionExecute = out.JobActionExecute
	JobSchedulerTick = out.JobSchedulerTick
)

// Message is the worker pool's internal job envelope, built from a
// out.QueueMessage by the stream consumer before submission to the pool.
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
		Retries:   0,
	}
}

func NewPriorityMessage(jobType string, payload map[string]any, priority Priority) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
		Retries:   0,
	}
}

// IsPriority checks if message should go to priority queue.
func (m *Message) IsPriority() bool {
	return m.Priority >= PriorityHigh
}
