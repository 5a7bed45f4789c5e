package domain

import "time"

// ConversationRole distinguishes user-authored turns from agent-authored
// ones in the rolling interaction history Memory maintains (§3.1).
type ConversationRole string

const (
	RoleUser  ConversationRole = "user"
	RoleAgent ConversationRole = "agent"
)

// ConversationTurn is one entry of the short-term context Memory (§4.K)
// builds for the Analyzer and Suggestion Generator. Grounded on
// agent_memory.py's rolling interaction history; supplements the
// distilled spec, which does not name conversation turns explicitly.
type ConversationTurn struct {
	UserID    string           `bson:"user_id" json:"user_id"`
	Role      ConversationRole `bson:"role" json:"role"`
	Content   string           `bson:"content" json:"content"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
}

// Context is what Memory.BuildContext assembles for a pipeline run: recent
// conversation, important senders, and sender-profile signals (§4.K).
type Context struct {
	UserID           string
	RecentTurns      []ConversationTurn
	ImportantSenders []string
	Profile          *UserProfile
}
