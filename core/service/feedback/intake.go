// Package feedback implements Feedback Intake (§4.Q): recording user
// corrections and deriving the latest-per-sender map the Reasoning Engine
// reads (§4.H step 1).
package feedback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/cache"
)

const feedbackMapCacheTTL = 2 * time.Minute

type Intake struct {
	store    out.DocumentStore
	cache    *cache.RedisCache
	cacheTTL time.Duration
}

func New(store out.DocumentStore) *Intake {
	return &Intake{store: store}
}

// WithCache attaches the §4.B Redis read-through cache fronting the
// feedback map. Safe to skip.
func (i *Intake) WithCache(c *cache.RedisCache) *Intake {
	i.cache = c
	i.cacheTTL = feedbackMapCacheTTL
	return i
}

func feedbackMapCacheKey(userID string) string { return "feedback_map:" + userID }

// RecordFeedback appends a new feedback document with a denormalized
// sender_key computed identically to §4.H (callers pass it in already
// computed via feature.SenderKey, so the two never drift). Evicts the
// user's cached feedback map so the next read rebuilds it from the store.
func (i *Intake) RecordFeedback(ctx context.Context, fb *domain.Feedback) error {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	if err := i.store.Set(ctx, out.CollectionFeedback, fb.FeedbackID, fb); err != nil {
		return err
	}
	if i.cache != nil {
		_ = i.cache.Delete(ctx, feedbackMapCacheKey(fb.UserID))
	}
	return nil
}

// FeedbackMap streams feedback ordered by created_at DESC and records the
// first (i.e. latest) corrected_priority encountered per sender_key (§4.Q
// "Read (feedback map)"). Reads through the Redis cache when attached.
func (i *Intake) FeedbackMap(ctx context.Context, userID string) (domain.FeedbackMap, error) {
	if i.cache != nil {
		var cached domain.FeedbackMap
		if hit, _ := i.cache.GetJSON(ctx, feedbackMapCacheKey(userID), &cached); hit {
			return cached, nil
		}
	}

	result := domain.FeedbackMap{}

	err := i.store.Where(ctx, out.CollectionFeedback,
		out.Filter{"user_id": userID},
		[]out.OrderBy{{Field: "created_at", Descending: true}},
		0,
		func(raw []byte) error {
			var fb domain.Feedback
			if err := json.Unmarshal(raw, &fb); err != nil {
				return err
			}
			if fb.CorrectedPriority == nil {
				return nil
			}
			if _, seen := result[fb.SenderKey]; !seen {
				result[fb.SenderKey] = *fb.CorrectedPriority
			}
			return nil
		},
	)
	if err != nil {
		return result, err
	}

	if i.cache != nil {
		_ = i.cache.SetJSON(ctx, feedbackMapCacheKey(userID), result, i.cacheTTL)
	}
	return result, nil
}
