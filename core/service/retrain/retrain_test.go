package retrain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/classifier"
	"github.com/mailkeeper/agent/core/service/realtime"
)

type fakeStore struct {
	docs map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{docs: map[string][]byte{}} }

func (s *fakeStore) key(collection, id string) string { return collection + "/" + id }

func (s *fakeStore) GetByID(ctx context.Context, collection, id string, into interface{}) error {
	raw, ok := s.docs[s.key(collection, id)]
	if !ok {
		return assert.AnError
	}
	return json.Unmarshal(raw, into)
}

func (s *fakeStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.docs[s.key(collection, id)] = raw
	return nil
}

func (s *fakeStore) PartialUpdate(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return nil
}

func (s *fakeStore) Where(ctx context.Context, collection string, filter out.Filter, order []out.OrderBy, limit int, fn func(raw []byte) error) error {
	for key, raw := range s.docs {
		if len(key) < len(collection) || key[:len(collection)] != collection {
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Count(ctx context.Context, collection string, filter out.Filter) (int64, error) {
	count := int64(0)
	for key := range s.docs {
		if len(key) >= len(collection) && key[:len(collection)] == collection {
			count++
		}
	}
	return count, nil
}

type fakeBlobs struct {
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{blobs: map[string][]byte{}} }

func (b *fakeBlobs) GetBytes(ctx context.Context, path string) ([]byte, error) {
	data, ok := b.blobs[path]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

func (b *fakeBlobs) PutBytes(ctx context.Context, path string, data []byte) error {
	b.blobs[path] = data
	return nil
}

type noopPush struct{}

func (noopPush) Subscribe(userID string) <-chan *domain.RealtimeEvent       { return nil }
func (noopPush) Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent) {}
func (noopPush) Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error {
	return nil
}
func (noopPush) Broadcast(ctx context.Context, event *domain.RealtimeEvent) error { return nil }
func (noopPush) ConnectedCount() int                                             { return 0 }
func (noopPush) IsConnected(userID string) bool                                  { return false }

func seedFeedbackAndMessages(t *testing.T, store *fakeStore, n int) {
	t.Helper()
	priorities := []domain.Priority{domain.PriorityHigh, domain.PriorityLow}
	for i := 0; i < n; i++ {
		messageID := "m" + string(rune('0'+i))
		userID := "user-1"
		priority := priorities[i%2]

		msg := domain.Message{
			UserID:    userID,
			MessageID: messageID,
			Subject:   "subject",
			BodyText:  "body text",
			Sender:    domain.Sender{Address: "sender@example.com"},
		}
		require.NoError(t, store.Set(context.Background(), out.CollectionMessages, userID+":"+messageID, msg))

		fb := domain.Feedback{
			UserID:            userID,
			MessageID:         messageID,
			CorrectedPriority: &priority,
		}
		require.NoError(t, store.Set(context.Background(), out.CollectionFeedback, userID+":"+messageID+":fb", fb))
	}
}

func TestMaybeRetrain_BelowTriggerCount_NoOp(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedFeedbackAndMessages(t, store, 3)

	blobs := newFakeBlobs()
	handle := classifier.New()
	bc := realtime.New(noopPush{}, store)
	c := New(store, blobs, handle, bc, 10)

	retrained, err := c.MaybeRetrain(ctx)
	require.NoError(t, err)
	assert.False(t, retrained)
}

func TestMaybeRetrain_FitsAndPublishesArtifact(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedFeedbackAndMessages(t, store, 6)

	blobs := newFakeBlobs()
	handle := classifier.New()
	bc := realtime.New(noopPush{}, store)
	c := New(store, blobs, handle, bc, 5)

	retrained, err := c.MaybeRetrain(ctx)
	require.NoError(t, err)
	assert.True(t, retrained)

	_, err = blobs.GetBytes(ctx, "classifier/v1/pipeline.json")
	require.NoError(t, err)

	_, confidence, ok := handle.Predict(classifier.Features{TextFeatures: "subject body text", SenderDomain: "sender@example.com"})
	assert.True(t, ok)
	assert.GreaterOrEqual(t, confidence, 0.0)
}

func TestMaybeRetrain_SkipsStateAdvanceWhenNoRowsSurviveTheJoin(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	priority := domain.PriorityHigh
	require.NoError(t, store.Set(ctx, out.CollectionFeedback, "user-1:orphan:fb", domain.Feedback{
		UserID:            "user-1",
		MessageID:         "orphan", // no matching Message document
		CorrectedPriority: &priority,
	}))

	blobs := newFakeBlobs()
	handle := classifier.New()
	bc := realtime.New(noopPush{}, store)
	c := New(store, blobs, handle, bc, 1)

	retrained, err := c.MaybeRetrain(ctx)
	require.NoError(t, err)
	assert.False(t, retrained)

	_, err = blobs.GetBytes(ctx, statePath)
	assert.Error(t, err, "state must remain unpersisted when no training rows survive the feedback/message join")
}
