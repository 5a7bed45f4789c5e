package domain

import "time"

// Priority is the actionable urgency label assigned to a Message by the
// reasoning engine.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Rank gives a total order over priorities, highest first, used by the
// scheduler and by auto-archive purpose/priority gates.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Purpose is the semantic intent label produced by the Analyzer (§4.I).
type Purpose string

const (
	PurposePromotion     Purpose = "promotion"
	PurposeTransactional Purpose = "transactional"
	PurposeSocial        Purpose = "social"
	PurposeAlert         Purpose = "alert"
	PurposePersonal      Purpose = "personal"
	PurposeForumDigest   Purpose = "forum_digest"
	PurposeActionRequest Purpose = "action_required"
	PurposeInformation   Purpose = "information"
	PurposeQuestion      Purpose = "question"
	PurposeMeetingInvite Purpose = "meeting_invite"
	PurposeUnknown       Purpose = "unknown"
)

// SummaryType selects the summarizer's prompt profile (§4.I).
type SummaryType string

const (
	SummaryStandard      SummaryType = "standard"
	SummaryBrief         SummaryType = "brief"
	SummaryDetailed      SummaryType = "detailed"
	SummaryActionFocused SummaryType = "action_focused"
)

// Sender is a parsed "Display Name <address>" header value.
type Sender struct {
	DisplayName string `bson:"display_name" json:"display_name"`
	Address     string `bson:"address" json:"address"`
	Raw         string `bson:"raw" json:"raw"`
}

// Message is a parsed email and the sole unit of work for the pipeline (§3).
type Message struct {
	UserID   string `bson:"user_id" json:"user_id"`
	MessageID string `bson:"message_id" json:"message_id"` // provider-assigned, stable
	ThreadID  string `bson:"thread_id" json:"thread_id"`

	Sender     Sender    `bson:"sender" json:"sender"`
	Subject    string    `bson:"subject" json:"subject"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
	BodyText   string    `bson:"body_text" json:"body_text"`
	BodyHTML   string    `bson:"body_html" json:"body_html"`
	Labels     []string  `bson:"labels" json:"labels"`
	Snippet    string    `bson:"snippet" json:"snippet"`

	IsRead     bool `bson:"is_read" json:"is_read"`
	IsStarred  bool `bson:"is_starred" json:"is_starred"`
	IsArchived bool `bson:"is_archived" json:"is_archived"`

	// Derived fields, populated by the pipeline (§4.L).
	Priority         *Priority        `bson:"priority,omitempty" json:"priority,omitempty"`
	Purpose          *Purpose         `bson:"purpose,omitempty" json:"purpose,omitempty"`
	Urgency          *int             `bson:"urgency,omitempty" json:"urgency,omitempty"`
	ResponseNeeded   *bool            `bson:"response_needed,omitempty" json:"response_needed,omitempty"`
	EstimatedMinutes *int             `bson:"estimated_minutes,omitempty" json:"estimated_minutes,omitempty"`
	Summary          *string          `bson:"summary,omitempty" json:"summary,omitempty"`
	SummaryType      *SummaryType     `bson:"summary_type,omitempty" json:"summary_type,omitempty"`
	ReasoningRecord  *ReasoningRecord `bson:"reasoning_record,omitempty" json:"reasoning_record,omitempty"`
	Suggestions      []Suggestion     `bson:"suggestions,omitempty" json:"suggestions,omitempty"`

	MeetingProcessed bool `bson:"meeting_processed" json:"meeting_processed"`

	ProcessedTimestamp time.Time  `bson:"processed_timestamp" json:"processed_timestamp"`
	ReclassifiedAt     *time.Time `bson:"reclassified_at,omitempty" json:"reclassified_at,omitempty"`
}

// MessageRef is the lightweight listing shape returned by the mail client's
// list operation (§6).
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// Suggestion is a single actionable recommendation produced by J.
type Suggestion struct {
	Text           string  `bson:"text" json:"text"`
	SuggestionType string  `bson:"suggestion_type" json:"suggestion_type"`
	Confidence     float64 `bson:"confidence" json:"confidence"`
}

// BodyParseSentinel is stored as BodyText when every decoding strategy fails
// (§4.L step 3); the record is still persisted.
const BodyParseSentinel = "[Could not parse HTML content]"
