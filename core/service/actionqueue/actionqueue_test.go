package actionqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
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
	var current map[string]interface{}
	raw, ok := s.docs[s.key(collection, id)]
	if ok {
		_ = json.Unmarshal(raw, &current)
	}
	if current == nil {
		current = map[string]interface{}{}
	}
	for k, v := range fields {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return err
	}
	s.docs[s.key(collection, id)] = merged
	return nil
}

func (s *fakeStore) Where(ctx context.Context, collection string, filter out.Filter, order []out.OrderBy, limit int, fn func(raw []byte) error) error {
	for _, raw := range s.docs {
		if err := fn(raw); err != nil {
			return err
		}
		if limit > 0 {
			return nil
		}
	}
	return nil
}

func (s *fakeStore) Count(ctx context.Context, collection string, filter out.Filter) (int64, error) {
	return 0, nil
}

type fakeMail struct {
	archived    []string
	err         error
	failuresLeft int
}

func (m *fakeMail) ListMessages(ctx context.Context, userID string, labels []string, query string, maxResults int) ([]out.MessageRef, error) {
	return nil, nil
}
func (m *fakeMail) GetMessage(ctx context.Context, userID, messageID string) (*out.RawMessage, error) {
	return nil, nil
}
func (m *fakeMail) ModifyLabels(ctx context.Context, userID, messageID string, add, remove []string) error {
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return apperr.ExternalError("mail", assert.AnError)
	}
	if m.err != nil {
		return m.err
	}
	m.archived = append(m.archived, messageID)
	return nil
}
func (m *fakeMail) Send(ctx context.Context, userID, rawRFC822Base64URL string) error { return nil }
func (m *fakeMail) ListThreadMessages(ctx context.Context, userID, threadID string) ([]out.MessageRef, error) {
	return nil, nil
}
func (m *fakeMail) ListLabels(ctx context.Context, userID string) ([]out.Label, error) { return nil, nil }
func (m *fakeMail) CreateLabel(ctx context.Context, userID, name string) (out.Label, error) {
	return out.Label{ID: "id-" + name, Name: name}, nil
}

func TestEnqueue_WritesPendingRequest(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	q := New(store, &fakeMail{}, nil)

	messageID := "m1"
	reqID, err := q.Enqueue(ctx, "user-1", &messageID, domain.ActionArchive, map[string]interface{}{"message_id": messageID})
	require.NoError(t, err)

	var req domain.ActionRequest
	require.NoError(t, store.GetByID(ctx, out.CollectionActionRequests, reqID, &req))
	assert.Equal(t, domain.ActionRequestPending, req.Status)
	assert.Equal(t, domain.ActionArchive, req.Action)
}

func TestExecuteNext_ArchiveSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mail := &fakeMail{}
	q := New(store, mail, nil)
	q.sleep = func(time.Duration) {}

	messageID := "m1"
	reqID, err := q.Enqueue(ctx, "user-1", &messageID, domain.ActionArchive, map[string]interface{}{"message_id": messageID})
	require.NoError(t, err)

	executed, err := q.ExecuteNext(ctx)
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, []string{"m1"}, mail.archived)

	var req domain.ActionRequest
	require.NoError(t, store.GetByID(ctx, out.CollectionActionRequests, reqID, &req))
	assert.Equal(t, domain.ActionRequestCompleted, req.Status)
}

func TestExecuteByID_RetriesTransientThenSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mail := &fakeMail{failuresLeft: 2}
	q := New(store, mail, nil)
	q.sleep = func(time.Duration) {}

	messageID := "m1"
	reqID, err := q.Enqueue(ctx, "user-1", &messageID, domain.ActionArchive, map[string]interface{}{"message_id": messageID})
	require.NoError(t, err)

	require.NoError(t, q.ExecuteByID(ctx, reqID))

	var req domain.ActionRequest
	require.NoError(t, store.GetByID(ctx, out.CollectionActionRequests, reqID, &req))
	assert.Equal(t, domain.ActionRequestCompleted, req.Status)
}

func TestExecuteByID_ClientErrorFailsImmediately(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mail := &fakeMail{err: apperr.BadRequest("invalid message id")}
	q := New(store, mail, nil)
	q.sleep = func(time.Duration) { t.Fatal("must not retry a client error") }

	messageID := "m1"
	reqID, err := q.Enqueue(ctx, "user-1", &messageID, domain.ActionArchive, map[string]interface{}{"message_id": messageID})
	require.NoError(t, err)

	require.NoError(t, q.ExecuteByID(ctx, reqID))

	var req domain.ActionRequest
	require.NoError(t, store.GetByID(ctx, out.CollectionActionRequests, reqID, &req))
	assert.Equal(t, domain.ActionRequestFailed, req.Status)
}
