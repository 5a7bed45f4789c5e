package out

import (
	"context"

	"github.com/mailkeeper/agent/core/domain"
)

// RealtimePort pushes events (§4.P) to subscribed clients.
type RealtimePort interface {
	// Subscribe opens a per-user event channel.
	Subscribe(userID string) <-chan *domain.RealtimeEvent

	Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent)

	// Push sends an event to one user's subscribers.
	Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error

	// Broadcast sends an event to every connected user.
	Broadcast(ctx context.Context, event *domain.RealtimeEvent) error

	ConnectedCount() int

	IsConnected(userID string) bool
}
