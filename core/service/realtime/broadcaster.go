// Package realtime implements the Realtime Broadcaster (§4.P): it wraps
// RealtimePort to push per-user stage events and mirrors every emission as
// an ActivityEntry via the Persistence Gateway so a late-joining client can
// reconstruct recent state.
package realtime

import (
	"context"
	"strconv"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
)

type Broadcaster struct {
	push  out.RealtimePort
	store out.DocumentStore
	seq   int64
}

func New(push out.RealtimePort, store out.DocumentStore) *Broadcaster {
	return &Broadcaster{push: push, store: store}
}

// Emit pushes event to userID's room and persists an ActivityEntry mirror.
// Push failures (no connected client) never block persistence; persistence
// failures never block the push.
func (b *Broadcaster) Emit(ctx context.Context, userID string, eventType domain.EventType, status domain.ActivityStatus, stage string, details map[string]interface{}) {
	now := time.Now().UTC()
	b.seq++

	event := &domain.RealtimeEvent{
		Type:      eventType,
		Seq:       b.seq,
		UserID:    userID,
		Data:      details,
		Timestamp: now,
	}
	_ = b.push.Push(ctx, userID, event)

	entry := domain.ActivityEntry{
		ID:        userID + ":" + strconv.FormatInt(b.seq, 10),
		UserID:    userID,
		Type:      eventType,
		Stage:     stage,
		Status:    status,
		Details:   details,
		CreatedAt: now.Format(time.RFC3339Nano),
		UpdatedAt: now.Format(time.RFC3339Nano),
	}
	_ = b.store.Set(ctx, out.CollectionActivities, entry.ID, entry)
}
