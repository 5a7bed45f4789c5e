package domain

import "time"

// TaskStatus is the lifecycle of an autonomously or manually extracted task.
type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusDismissed TaskStatus = "dismissed"
)

// TaskType enumerates the kinds of user_tasks documents the scheduler (§4.N)
// writes. follow_up_needed is the only kind named explicitly by the spec;
// other creation paths (suggestion-driven task extraction, §4.L step 10)
// use TaskTypeExtracted.
type TaskType string

const (
	TaskTypeFollowUpNeeded TaskType = "follow_up_needed"
	TaskTypeExtracted      TaskType = "extracted"
	TaskTypeCalendarDraft  TaskType = "calendar_draft"
)

// CreationMethod records whether a Task was created by a human action or
// by the autonomous scheduler (§4.L step 10, §4.N.3).
type CreationMethod string

const (
	CreationMethodManual     CreationMethod = "manual"
	CreationMethodAutonomous CreationMethod = "autonomous"
)

// Task is an autonomously (or pipeline-) extracted action item (§3).
type Task struct {
	TaskID           string         `bson:"task_id" json:"task_id"`
	UserID           string         `bson:"user_id" json:"user_id"`
	TaskType         TaskType       `bson:"task_type" json:"task_type"`
	TaskDescription  string         `bson:"task_description" json:"task_description"`
	Deadline         *time.Time     `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Stakeholders     []string       `bson:"stakeholders,omitempty" json:"stakeholders,omitempty"`
	RelatedMessageID string         `bson:"related_message_id" json:"related_message_id"`
	CreationMethod   CreationMethod `bson:"creation_method" json:"creation_method"`
	Status           TaskStatus     `bson:"status" json:"status"`
	CreatedAt        time.Time      `bson:"created_at" json:"created_at"`
}
