package domain

import (
	"math"
	"time"
)

// SenderProfile is the aggregate Memory maintains opportunistically from
// pipeline outcomes (§3.1). It is a soft signal: the Reasoning Engine's
// deterministic chain in §4.H never reads it directly, but the Suggestion
// Generator (§4.J) consults it to rank which messages merit a suggestion.
//
// Adapted from the teacher's engagement-scoring sender profile: the
// importance-score heuristic (reply/read/delete rate, recency, contact
// status) is kept because it directly matches §4.J's "auxiliary signal"
// role, generalized from a Postgres-backed entity to a SenderProfile keyed
// by SenderKey so it lines up with §4.F/§4.H's canonical sender_key.
type SenderProfile struct {
	SenderKey string `bson:"sender_key" json:"sender_key"`
	UserID    string `bson:"user_id" json:"user_id"`
	Domain    string `bson:"domain" json:"domain"`

	TotalSeen     int `bson:"total_seen" json:"total_seen"`
	TotalReplied  int `bson:"total_replied" json:"total_replied"`
	TotalDeleted  int `bson:"total_deleted" json:"total_deleted"`
	TotalArchived int `bson:"total_archived" json:"total_archived"`

	IsContact bool `bson:"is_contact" json:"is_contact"`

	LastSeenAt time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// ImportanceScore derives a 0..1 soft-signal score from engagement history,
// used by the Suggestion Generator to prioritize which messages to surface
// a suggestion for (§4.J). Capped below 1.0 so it never outweighs the
// deterministic reasoning chain's own confidence.
func (p *SenderProfile) ImportanceScore() float64 {
	if p.TotalSeen == 0 {
		return 0
	}

	replyRate := float64(p.TotalReplied) / float64(p.TotalSeen)
	deleteRate := float64(p.TotalDeleted) / float64(p.TotalSeen)

	score := replyRate*0.5 + (1-deleteRate)*0.2

	if p.IsContact {
		score += 0.15
	}

	if !p.LastSeenAt.IsZero() {
		days := time.Since(p.LastSeenAt).Hours() / 24
		switch {
		case days < 7:
			score += 0.15
		case days < 30:
			score += 0.08
		}
	}

	return math.Min(score, 0.95)
}
