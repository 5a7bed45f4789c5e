package scheduler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/analyzer"
	"github.com/mailkeeper/agent/core/service/memory"
	"github.com/mailkeeper/agent/core/service/realtime"
	"github.com/mailkeeper/agent/core/service/suggestion"
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

// Where does a naive top-level-field equality match against each stored
// document's JSON view, sufficient for these tests' single-field filters.
func (s *fakeStore) Where(ctx context.Context, collection string, filter out.Filter, order []out.OrderBy, limit int, fn func(raw []byte) error) error {
	prefix := collection + "/"
	matched := 0
	for key, raw := range s.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var asMap map[string]interface{}
		if err := json.Unmarshal(raw, &asMap); err != nil {
			continue
		}
		ok := true
		for field, want := range filter {
			if wantStr, isStr := want.(string); isStr {
				if got, _ := asMap[field].(string); got != wantStr {
					ok = false
					break
				}
				continue
			}
			if wantBool, isBool := want.(bool); isBool {
				got, _ := asMap[field].(bool)
				if got != wantBool {
					ok = false
					break
				}
			}
		}
		if !ok {
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
		matched++
		if limit > 0 && matched >= limit {
			return nil
		}
	}
	return nil
}

func (s *fakeStore) Count(ctx context.Context, collection string, filter out.Filter) (int64, error) {
	return 0, nil
}

type fakeMail struct {
	sent      []out.MessageRef
	messages  map[string]*out.RawMessage
	threads   map[string][]out.MessageRef
	labels    []out.Label
	modified  []string
}

func (m *fakeMail) ListMessages(ctx context.Context, userID string, labels []string, query string, maxResults int) ([]out.MessageRef, error) {
	return m.sent, nil
}
func (m *fakeMail) GetMessage(ctx context.Context, userID, messageID string) (*out.RawMessage, error) {
	return m.messages[messageID], nil
}
func (m *fakeMail) ModifyLabels(ctx context.Context, userID, messageID string, add, remove []string) error {
	m.modified = append(m.modified, messageID)
	return nil
}
func (m *fakeMail) Send(ctx context.Context, userID, rawRFC822Base64URL string) error { return nil }
func (m *fakeMail) ListThreadMessages(ctx context.Context, userID, threadID string) ([]out.MessageRef, error) {
	return m.threads[threadID], nil
}
func (m *fakeMail) ListLabels(ctx context.Context, userID string) ([]out.Label, error) {
	return m.labels, nil
}
func (m *fakeMail) CreateLabel(ctx context.Context, userID, name string) (out.Label, error) {
	return out.Label{ID: "id-" + name, Name: name}, nil
}

type fakeCalendar struct {
	created []out.CalendarEvent
}

func (c *fakeCalendar) CreateDraftEvent(ctx context.Context, userID string, event out.CalendarEvent) (string, error) {
	c.created = append(c.created, event)
	return "evt-1", nil
}

type noopActionQueue struct{ enqueued []domain.Action }

func (q *noopActionQueue) Enqueue(ctx context.Context, userID string, messageID *string, action domain.Action, params map[string]interface{}) (string, error) {
	q.enqueued = append(q.enqueued, action)
	return "req-1", nil
}
func (q *noopActionQueue) ExecuteNext(ctx context.Context) (bool, error) { return false, nil }
func (q *noopActionQueue) ExecuteByID(ctx context.Context, requestID string) error {
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

// validJSONLLM always answers the analyzer's structured-analysis prompt
// with a fixed, valid purpose so reEvaluateUnknowns never falls into the
// analyzer's real retry/backoff loop.
type validJSONLLM struct{}

func (validJSONLLM) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	return `{"urgency_score":2,"purpose":"personal","response_needed":false,"estimated_minutes":1}`, nil
}

func newTestScheduler(store *fakeStore, mail *fakeMail, calendar *fakeCalendar, queue *noopActionQueue, cfg Config) *Scheduler {
	an := analyzer.New(validJSONLLM{}, analyzer.Config{})
	sg := suggestion.New(validJSONLLM{})
	mem := memory.New(store)
	bc := realtime.New(noopPush{}, store)
	return New(mail, store, calendar, an, sg, mem, queue, bc, cfg)
}

func setAutonomousProfile(t *testing.T, store *fakeStore, userID string, enabled, dailySummary bool) {
	t.Helper()
	profile := domain.DefaultUserProfile(userID)
	profile.AgentPreferences.AutonomousModeEnabled = enabled
	profile.AgentPreferences.DailySummaryEnabled = dailySummary
	require.NoError(t, store.Set(context.Background(), out.CollectionUserProfile, userID, profile))
}

func TestRunTask_SkipsWhenAutonomousModeDisabled(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	setAutonomousProfile(t, store, "user-1", false, false)
	queue := &noopActionQueue{}
	s := newTestScheduler(store, &fakeMail{}, &fakeCalendar{}, queue, Config{})

	require.NoError(t, s.RunTask(ctx, "user-1", in.TaskAutoArchive))
	assert.Empty(t, queue.enqueued)
}

func TestRunTask_AutoArchive_EnqueuesQualifyingMessage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	setAutonomousProfile(t, store, "user-1", true, false)

	priority := domain.PriorityLow
	purpose := domain.PurposePromotion
	msg := domain.Message{
		UserID:             "user-1",
		MessageID:          "m1",
		Sender:             domain.Sender{Address: "promo@shop.com"},
		Priority:           &priority,
		Purpose:            &purpose,
		ReasoningRecord:    &domain.ReasoningRecord{Confidence: 0.99},
		ProcessedTimestamp: time.Now().UTC().AddDate(0, 0, -30),
	}
	require.NoError(t, store.Set(ctx, out.CollectionMessages, "user-1:m1", msg))

	queue := &noopActionQueue{}
	s := newTestScheduler(store, &fakeMail{}, &fakeCalendar{}, queue, Config{})

	require.NoError(t, s.RunTask(ctx, "user-1", in.TaskAutoArchive))
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, domain.ActionArchive, queue.enqueued[0])
}

func TestRunTask_FollowUpDetection_CreatesTaskForStaleSentMessage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	setAutonomousProfile(t, store, "user-1", true, false)

	mail := &fakeMail{
		sent: []out.MessageRef{{ID: "sent-1", ThreadID: "t1"}},
		messages: map[string]*out.RawMessage{
			"sent-1": {MessageID: "sent-1", ThreadID: "t1", Subject: "Proposal", Date: time.Now().UTC().AddDate(0, 0, -5)},
		},
		threads: map[string][]out.MessageRef{
			"t1": {{ID: "sent-1", ThreadID: "t1"}},
		},
	}
	queue := &noopActionQueue{}
	s := newTestScheduler(store, mail, &fakeCalendar{}, queue, Config{FollowUpRemindDays: 3})

	require.NoError(t, s.RunTask(ctx, "user-1", in.TaskFollowUpDetection))

	var task domain.Task
	require.NoError(t, store.GetByID(ctx, out.CollectionUserTasks, "follow_up:sent-1", &task))
	assert.Equal(t, domain.TaskTypeFollowUpNeeded, task.TaskType)
}

func TestRunTask_MeetingPrep_MarksProcessedRegardlessOfOutcome(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	setAutonomousProfile(t, store, "user-1", true, false)

	priority := domain.PriorityHigh
	purpose := domain.PurposeMeetingInvite
	msg := domain.Message{
		UserID:          "user-1",
		MessageID:       "m2",
		Subject:         "Sync next week",
		Priority:        &priority,
		Purpose:         &purpose,
		ReasoningRecord: &domain.ReasoningRecord{Confidence: 0.2},
	}
	require.NoError(t, store.Set(ctx, out.CollectionMessages, "user-1:m2", msg))

	calendar := &fakeCalendar{}
	s := newTestScheduler(store, &fakeMail{}, calendar, &noopActionQueue{}, Config{MeetingPrepConfidenceThreshold: 0.7})

	require.NoError(t, s.RunTask(ctx, "user-1", in.TaskMeetingPrep))

	var persisted domain.Message
	require.NoError(t, store.GetByID(ctx, out.CollectionMessages, "user-1:m2", &persisted))
	assert.True(t, persisted.MeetingProcessed)
	assert.Empty(t, calendar.created, "confidence below threshold must not create a draft")
}

func TestRunTask_RespectsCadence(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	userID := "user-1"
	profile := domain.DefaultUserProfile(userID)
	profile.AgentPreferences.AutonomousModeEnabled = true
	now := time.Now().UTC()
	profile.AutonomousTasks = map[string]domain.AutonomousTaskState{
		string(in.TaskAutoArchive): {LastRunUTC: &now},
	}
	require.NoError(t, store.Set(ctx, out.CollectionUserProfile, userID, profile))

	queue := &noopActionQueue{}
	s := newTestScheduler(store, &fakeMail{}, &fakeCalendar{}, queue, Config{})

	require.NoError(t, s.RunTask(ctx, userID, in.TaskAutoArchive))
	assert.Empty(t, queue.enqueued, "must skip because the interval has not elapsed")
}
