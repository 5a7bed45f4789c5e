package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/feedback"
	"github.com/mailkeeper/agent/core/service/memory"
	"github.com/mailkeeper/agent/core/service/realtime"
	"github.com/mailkeeper/agent/core/service/reasoning"
	"github.com/mailkeeper/agent/core/service/suggestion"
)

type fakeMail struct {
	refs     []out.MessageRef
	messages map[string]*out.RawMessage
	modified []string
}

func (f *fakeMail) ListMessages(ctx context.Context, userID string, labels []string, query string, maxResults int) ([]out.MessageRef, error) {
	return f.refs, nil
}
func (f *fakeMail) GetMessage(ctx context.Context, userID, messageID string) (*out.RawMessage, error) {
	return f.messages[messageID], nil
}
func (f *fakeMail) ModifyLabels(ctx context.Context, userID, messageID string, add, remove []string) error {
	f.modified = append(f.modified, messageID)
	return nil
}
func (f *fakeMail) Send(ctx context.Context, userID, rawRFC822Base64URL string) error { return nil }
func (f *fakeMail) ListThreadMessages(ctx context.Context, userID, threadID string) ([]out.MessageRef, error) {
	return nil, nil
}
func (f *fakeMail) ListLabels(ctx context.Context, userID string) ([]out.Label, error) { return nil, nil }
func (f *fakeMail) CreateLabel(ctx context.Context, userID, name string) (out.Label, error) {
	return out.Label{}, nil
}

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
	return nil
}

func (s *fakeStore) Count(ctx context.Context, collection string, filter out.Filter) (int64, error) {
	return 0, nil
}

type noopLLM struct{}

func (noopLLM) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	return "", assert.AnError
}

type noopPush struct{}

func (noopPush) Subscribe(userID string) <-chan *domain.RealtimeEvent      { return nil }
func (noopPush) Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent) {}
func (noopPush) Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error {
	return nil
}
func (noopPush) Broadcast(ctx context.Context, event *domain.RealtimeEvent) error { return nil }
func (noopPush) ConnectedCount() int                                             { return 0 }
func (noopPush) IsConnected(userID string) bool                                  { return false }

type noopActionQueue struct{ enqueued int }

func (q *noopActionQueue) Enqueue(ctx context.Context, userID string, messageID *string, action domain.Action, params map[string]interface{}) (string, error) {
	q.enqueued++
	return "req-1", nil
}
func (q *noopActionQueue) ExecuteNext(ctx context.Context) (bool, error) { return false, nil }
func (q *noopActionQueue) ExecuteByID(ctx context.Context, requestID string) error {
	return nil
}

type failOpenAnalyzer struct{}

func newFailOpenAnalyzer() *failOpenAnalyzer { return &failOpenAnalyzer{} }

func (failOpenAnalyzer) Analyze(ctx context.Context, msg *domain.Message) (*reasoning.Analysis, error) {
	return nil, assert.AnError
}
func (failOpenAnalyzer) Summarize(ctx context.Context, msg *domain.Message, summaryType domain.SummaryType) string {
	return "Error: no analysis available"
}

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func newTestPipeline(t *testing.T, mail *fakeMail, store *fakeStore, queue *noopActionQueue) *Pipeline {
	t.Helper()
	engine := reasoning.New(nil, nil, reasoning.Config{})
	an := newFailOpenAnalyzer()
	mem := memory.New(store)
	fb := feedback.New(store)
	sg := suggestion.New(noopLLM{})
	bc := realtime.New(noopPush{}, store)
	return New(mail, store, noopLLM{}, engine, an, sg, mem, fb, queue, bc)
}

func TestProcessInbox_PersistsOneMessage(t *testing.T) {
	ctx := context.Background()
	mail := &fakeMail{
		refs: []out.MessageRef{{ID: "m1", ThreadID: "t1"}},
		messages: map[string]*out.RawMessage{
			"m1": {
				MessageID:    "m1",
				ThreadID:     "t1",
				Labels:       []string{"INBOX", "UNREAD"},
				FromRaw:      "Alice <alice@example.com>",
				Subject:      "Quarterly numbers",
				Snippet:      "please review",
				PlainTextB64: b64("please review the attached numbers"),
			},
		},
	}
	store := newFakeStore()
	queue := &noopActionQueue{}
	p := newTestPipeline(t, mail, store, queue)

	processed, err := p.ProcessInbox(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	var persisted domain.Message
	require.NoError(t, store.GetByID(ctx, out.CollectionMessages, messageDocID("user-1", "m1"), &persisted))
	assert.Equal(t, "m1", persisted.MessageID)
	assert.NotNil(t, persisted.Priority)
	assert.NotNil(t, persisted.ReasoningRecord)
}

func TestProcessInbox_SkipsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	mail := &fakeMail{
		refs: []out.MessageRef{{ID: "m1", ThreadID: "t1"}},
		messages: map[string]*out.RawMessage{
			"m1": {MessageID: "m1", FromRaw: "a@b.com", Subject: "s", PlainTextB64: b64("body")},
		},
	}
	store := newFakeStore()
	require.NoError(t, store.Set(ctx, out.CollectionMessages, messageDocID("user-1", "m1"), domain.Message{MessageID: "m1"}))
	queue := &noopActionQueue{}
	p := newTestPipeline(t, mail, store, queue)

	processed, err := p.ProcessInbox(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}
