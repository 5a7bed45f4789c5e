// Package memory implements Memory (§4.K): per-user profile, preferences,
// and conversation/interaction history, read/written through the
// Persistence Gateway (B).
//
// Grounded on the teacher's settings/profile repositories
// (core/domain/profile.go, formerly worker_profile.go) generalized from
// writing-style analysis to the spec's preference/state shape.
package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/cache"
)

const rollingWindowSize = 20
const profileCacheTTL = 5 * time.Minute

// Memory mediates all reads/writes of UserProfile, ConversationTurn, and
// SenderProfile documents.
type Memory struct {
	store    out.DocumentStore
	cache    *cache.RedisCache
	cacheTTL time.Duration
}

func New(store out.DocumentStore) *Memory {
	return &Memory{store: store}
}

// WithCache attaches the §4.B Redis read-through cache. Safe to skip: a
// Memory with no cache just always reads through to the store.
func (m *Memory) WithCache(c *cache.RedisCache) *Memory {
	m.cache = c
	m.cacheTTL = profileCacheTTL
	return m
}

func profileCacheKey(userID string) string { return "profile:" + userID }

// Profile fetches a user's profile, lazily creating defaults on first
// access (§3 "UserProfile lifecycle"). Reads through the Redis cache when
// attached; cache misses and writes always fall back to the store.
func (m *Memory) Profile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if m.cache != nil {
		var cached domain.UserProfile
		if hit, _ := m.cache.GetJSON(ctx, profileCacheKey(userID), &cached); hit {
			return &cached, nil
		}
	}

	var profile domain.UserProfile
	err := m.store.GetByID(ctx, out.CollectionUserProfile, userID, &profile)
	if err == nil {
		m.cacheProfile(ctx, &profile)
		return &profile, nil
	}

	defaults := domain.DefaultUserProfile(userID)
	if setErr := m.store.Set(ctx, out.CollectionUserProfile, userID, defaults); setErr != nil {
		return nil, setErr
	}
	m.cacheProfile(ctx, defaults)
	return defaults, nil
}

func (m *Memory) cacheProfile(ctx context.Context, profile *domain.UserProfile) {
	if m.cache == nil {
		return
	}
	_ = m.cache.SetJSON(ctx, profileCacheKey(profile.UserID), profile, m.cacheTTL)
}

// UpdateProfile applies a partial merge, never a full-document overwrite
// (§5 "shared resource policy"), and evicts the cached copy so the next
// read goes through to the store rather than serving the stale version.
func (m *Memory) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) error {
	if err := m.store.PartialUpdate(ctx, out.CollectionUserProfile, userID, fields); err != nil {
		return err
	}
	if m.cache != nil {
		_ = m.cache.Delete(ctx, profileCacheKey(userID))
	}
	return nil
}

// AppendTurn records one conversation turn, keyed by a synthetic ID so
// repeated turns from the same user don't collide (§3.1).
func (m *Memory) AppendTurn(ctx context.Context, turn domain.ConversationTurn) error {
	id := turn.UserID + ":" + turn.CreatedAt.Format(time.RFC3339Nano)
	return m.store.Set(ctx, out.CollectionConversationTurns, id, turn)
}

// RecentTurns returns up to rollingWindowSize most recent turns for a user.
func (m *Memory) RecentTurns(ctx context.Context, userID string) ([]domain.ConversationTurn, error) {
	var turns []domain.ConversationTurn
	err := m.store.Where(ctx, out.CollectionConversationTurns,
		out.Filter{"user_id": userID},
		[]out.OrderBy{{Field: "created_at", Descending: true}},
		rollingWindowSize,
		func(raw []byte) error {
			var t domain.ConversationTurn
			if err := json.Unmarshal(raw, &t); err != nil {
				return err
			}
			turns = append(turns, t)
			return nil
		},
	)
	return turns, err
}

// SenderProfile fetches the engagement aggregate for a sender, or nil if
// none exists yet.
func (m *Memory) SenderProfile(ctx context.Context, userID, senderKey string) (*domain.SenderProfile, error) {
	var profile domain.SenderProfile
	if err := m.store.GetByID(ctx, out.CollectionSenderProfiles, senderProfileID(userID, senderKey), &profile); err != nil {
		return nil, nil
	}
	return &profile, nil
}

// RecordOutcome upserts the SenderProfile aggregate from a pipeline
// outcome (§4.K).
func (m *Memory) RecordOutcome(ctx context.Context, userID, senderKey, domainName string, replied, deleted, archived bool) error {
	id := senderProfileID(userID, senderKey)

	existing, _ := m.SenderProfile(ctx, userID, senderKey)
	if existing == nil {
		existing = &domain.SenderProfile{SenderKey: senderKey, UserID: userID, Domain: domainName}
	}
	existing.TotalSeen++
	if replied {
		existing.TotalReplied++
	}
	if deleted {
		existing.TotalDeleted++
	}
	if archived {
		existing.TotalArchived++
	}
	existing.LastSeenAt = time.Now().UTC()

	return m.store.Set(ctx, out.CollectionSenderProfiles, id, existing)
}

// BuildContext assembles what the Analyzer (I) and Suggestion Generator (J)
// need: recent turns, important senders, and profile (§4.K).
func (m *Memory) BuildContext(ctx context.Context, userID string) (*domain.Context, error) {
	profile, err := m.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	turns, err := m.RecentTurns(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.Context{
		UserID:           userID,
		RecentTurns:      turns,
		ImportantSenders: profile.EmailPreferences.ImportantSenders,
		Profile:          profile,
	}, nil
}

func senderProfileID(userID, senderKey string) string {
	return userID + ":" + senderKey
}
