package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
)

// allTasks is every autonomous task kind the scheduler runs per user (§4.N).
var allTasks = []in.AutonomousTask{
	in.TaskAutoArchive,
	in.TaskDailySummary,
	in.TaskFollowUpDetection,
	in.TaskReEvaluateUnknowns,
	in.TaskMeetingPrep,
}

// schedulerTicker fires one SchedulerTickJob per user per task kind on a
// fixed interval (§4.N). RunTask itself owns the per-task cadence gate
// (last_run_utc vs configured interval), so most ticks are no-ops; this
// ticker's own in-flight guard only prevents piling up a second tick for a
// user/task pair whose prior tick has not yet been accepted by the worker
// pool and acked (the guard is released then, not when RunTask returns),
// grounded on the teacher's sync-retry/watch-renew periodic schedulers
// (adapter/in/worker/worker_sync_retry.go, worker_watch_renew.go).
type schedulerTicker struct {
	producer out.MessageProducer
	store    out.DocumentStore
	interval time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	stopCh chan struct{}
}

func newSchedulerTicker(producer out.MessageProducer, store out.DocumentStore, intervalMin int, log zerolog.Logger) *schedulerTicker {
	if intervalMin <= 0 {
		intervalMin = 15
	}
	return &schedulerTicker{
		producer: producer,
		store:    store,
		interval: time.Duration(intervalMin) * time.Minute,
		log:      log.With().Str("component", "scheduler_ticker").Logger(),
		inFlight: make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

func (t *schedulerTicker) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *schedulerTicker) stop() {
	close(t.stopCh)
}

func (t *schedulerTicker) tick(ctx context.Context) {
	userIDs, err := t.activeUsers(ctx)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to list users for scheduler tick")
		return
	}

	for _, userID := range userIDs {
		for _, task := range allTasks {
			key := userID + ":" + string(task)

			t.mu.Lock()
			_, busy := t.inFlight[key]
			if !busy {
				t.inFlight[key] = struct{}{}
			}
			t.mu.Unlock()
			if busy {
				continue
			}

			job := &out.SchedulerTickJob{UserID: userID, Task: string(task)}
			if err := t.producer.PublishSchedulerTick(ctx, job); err != nil {
				t.log.Error().Err(err).Str("user_id", userID).Str("task", string(task)).Msg("failed to publish scheduler tick")
				t.clear(userID, string(task))
			}
		}
	}
}

// clear releases a user/task pair's in-flight guard once its job has been
// acked off the stream (called from Worker.consumeStream).
func (t *schedulerTicker) clear(userID, task string) {
	t.mu.Lock()
	delete(t.inFlight, userID+":"+task)
	t.mu.Unlock()
}

// activeUsers lists every user with a persisted profile (§6 user_profile),
// the autonomous scheduler's target population.
func (t *schedulerTicker) activeUsers(ctx context.Context) ([]string, error) {
	var ids []string
	err := t.store.Where(ctx, out.CollectionUserProfile, out.Filter{}, nil, 500, func(raw []byte) error {
		var profile domain.UserProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			return err
		}
		if profile.UserID != "" {
			ids = append(ids, profile.UserID)
		}
		return nil
	})
	return ids, err
}
