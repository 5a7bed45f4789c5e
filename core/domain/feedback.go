package domain

import "time"

// Feedback is a user correction to a prior classification (§3). Multiple
// feedback rows may exist per message; Feedback Intake (§4.Q) derives a
// latest-per-sender map from the stream ordered by CreatedAt.
type Feedback struct {
	FeedbackID string `bson:"feedback_id" json:"feedback_id"`
	MessageID  string `bson:"message_id" json:"message_id"`
	UserID     string `bson:"user_id" json:"user_id"`

	OriginalPriority  Priority  `bson:"original_priority" json:"original_priority"`
	CorrectedPriority *Priority `bson:"corrected_priority,omitempty" json:"corrected_priority,omitempty"`
	OriginalPurpose   *Purpose  `bson:"original_purpose,omitempty" json:"original_purpose,omitempty"`
	CorrectedPurpose  *Purpose  `bson:"corrected_purpose,omitempty" json:"corrected_purpose,omitempty"`

	// SenderKey is denormalized at write time using the same canonicalization
	// the Reasoning Engine uses (§4.H step 1), so the two never drift.
	SenderKey string    `bson:"sender_key" json:"sender_key"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// FeedbackMap is sender_key -> latest corrected priority (Glossary).
type FeedbackMap map[string]Priority
