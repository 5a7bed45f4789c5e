package domain

import "time"

// EventType names a realtime event pushed through the Realtime Broadcaster
// (P) and mirrored into ActivityEntry rows (§3, §6 "Realtime events").
type EventType string

const (
	EventEmailProcessingStarted EventType = "email_processing_started"
	EventLLMAnalysisComplete    EventType = "llm_analysis_complete"
	EventClassificationComplete EventType = "classification_complete"
	EventSuggestionGenerated    EventType = "suggestion_generated"
	EventAutonomousActionExec   EventType = "autonomous_action_executed"

	EventMLTrainingStarted  EventType = "ml_training_started"
	EventMLTrainingProgress EventType = "ml_training_progress"
	EventMLTrainingComplete EventType = "ml_training_complete"
	EventMLTrainingError    EventType = "ml_training_error"

	EventActionQueued       EventType = "action_queued"
	EventSystemStatusUpdate EventType = "system_status_update"
)

// RealtimeEvent is the payload pushed to a subscribed client over SSE.
// Seq is assigned by the broadcaster/push adapter so a client can detect
// gaps across reconnects.
type RealtimeEvent struct {
	Type      EventType   `json:"type"`
	Seq       int64       `json:"seq"`
	UserID    string      `json:"-"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ActivityStatus is the outcome recorded against an ActivityEntry.
type ActivityStatus string

const (
	ActivityStatusStarted   ActivityStatus = "in_progress"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusFailed    ActivityStatus = "failed"
)

// ActivityEntry is the append-only broadcast log row mirroring a realtime
// event, letting a late-joining client reconstruct recent state (§3).
type ActivityEntry struct {
	ID        string                 `bson:"id" json:"id"`
	UserID    string                 `bson:"user_id" json:"user_id"`
	Type      EventType              `bson:"type" json:"type"`
	Stage     string                 `bson:"stage" json:"stage"`
	Status    ActivityStatus         `bson:"status" json:"status"`
	Details   map[string]interface{} `bson:"details" json:"details"`
	CreatedAt string                 `bson:"created_at" json:"created_at"`
	UpdatedAt string                 `bson:"updated_at" json:"updated_at"`
}
