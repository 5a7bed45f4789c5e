package domain

import "time"

// EmailPreferences holds the user's mail-side classification inputs (§3,
// §6 classification.* config keys are the defaults; these are the
// per-user overrides/additions layered on top).
type EmailPreferences struct {
	ImportantSenders       []string `bson:"important_senders" json:"important_senders"`
	FilteredDomains        []string `bson:"filtered_domains" json:"filtered_domains"`
	NotificationPreferences map[string]bool `bson:"notification_preferences" json:"notification_preferences"`
}

// AgentPreferences gates every autonomous behavior in §4.L and §4.N.
type AgentPreferences struct {
	AutonomousModeEnabled    bool   `bson:"autonomous_mode_enabled" json:"autonomous_mode_enabled"`
	SuggestionFrequency      string `bson:"suggestion_frequency" json:"suggestion_frequency"`
	AllowAutoArchiving       bool   `bson:"allow_auto_archiving" json:"allow_auto_archiving"`
	AllowAutoCategorization  bool   `bson:"allow_auto_categorization" json:"allow_auto_categorization"`
	AllowAutoDraft           bool   `bson:"allow_auto_draft" json:"allow_auto_draft"`
	AllowAutoTaskCreation    bool   `bson:"allow_auto_task_creation" json:"allow_auto_task_creation"`
	DailySummaryEnabled      bool   `bson:"daily_summary_enabled" json:"daily_summary_enabled"`
}

// AutonomousTaskState tracks per-task last-run bookkeeping consumed by the
// Autonomous Scheduler's cadence gate (§4.N).
type AutonomousTaskState struct {
	LastRunUTC *time.Time `bson:"last_run_utc,omitempty" json:"last_run_utc,omitempty"`
}

// ToneProfile is the writing-style signal Memory derives for the
// Suggestion Generator's draft phrasing (§4.J, §4.K).
type ToneProfile struct {
	Formality    float64 `bson:"formality" json:"formality"`
	Friendliness float64 `bson:"friendliness" json:"friendliness"`
	Directness   float64 `bson:"directness" json:"directness"`
	Enthusiasm   float64 `bson:"enthusiasm" json:"enthusiasm"`
}

// WritingPatterns captures stylistic habits used to make auto-drafted
// replies read like the user wrote them (§4.J).
type WritingPatterns struct {
	AvgSentenceLength float64  `bson:"avg_sentence_length" json:"avg_sentence_length"`
	UsesEmoji         bool     `bson:"uses_emoji" json:"uses_emoji"`
	UsesExclamation   bool     `bson:"uses_exclamation" json:"uses_exclamation"`
	CommonGreetings   []string `bson:"common_greetings" json:"common_greetings"`
	CommonClosings    []string `bson:"common_closings" json:"common_closings"`
}

// UserProfile is the per-user preference and autonomous-state document
// (§3). Lazily created with defaults on first access; mutated only via
// partial merges, never full-document overwrites (§5).
type UserProfile struct {
	UserID string `bson:"user_id" json:"user_id"`

	EmailPreferences EmailPreferences `bson:"email_preferences" json:"email_preferences"`
	AgentPreferences AgentPreferences `bson:"agent_preferences" json:"agent_preferences"`

	AutonomousTasks map[string]AutonomousTaskState `bson:"autonomous_tasks" json:"autonomous_tasks"`

	ToneProfile     *ToneProfile     `bson:"tone_profile,omitempty" json:"tone_profile,omitempty"`
	WritingPatterns *WritingPatterns `bson:"writing_patterns,omitempty" json:"writing_patterns,omitempty"`

	InteractionPatterns map[string]interface{} `bson:"interaction_patterns,omitempty" json:"interaction_patterns,omitempty"`
	LastAutonomousRunSummary string `bson:"last_autonomous_run_summary,omitempty" json:"last_autonomous_run_summary,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultUserProfile builds the zero-state profile a user gets on first
// access (§3 "lazily created with defaults").
func DefaultUserProfile(userID string) *UserProfile {
	now := time.Now().UTC()
	return &UserProfile{
		UserID: userID,
		EmailPreferences: EmailPreferences{
			ImportantSenders:        []string{},
			FilteredDomains:         []string{},
			NotificationPreferences: map[string]bool{},
		},
		AgentPreferences: AgentPreferences{
			SuggestionFrequency: "normal",
		},
		AutonomousTasks: map[string]AutonomousTaskState{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
