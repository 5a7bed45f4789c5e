// Package scheduler implements the Autonomous Scheduler (§4.N): five
// housekeeping tasks gated on agent_preferences.autonomous_mode_enabled and
// run on their own per-task cadence.
//
// Grounded on the teacher's periodic-ticker idiom in
// adapter/in/worker/worker_sync_retry.go / worker_watch_renew.go /
// worker_gap_sync.go, generalized from mail-sync bookkeeping to these five
// tasks; the guard against piling up ticks for a user/task pair is the
// mutex-guarded in-flight set in internal/bootstrap/scheduler_ticker.go, not
// here — RunTask always executes once invoked.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/analyzer"
	"github.com/mailkeeper/agent/core/service/feature"
	"github.com/mailkeeper/agent/core/service/memory"
	"github.com/mailkeeper/agent/core/service/realtime"
	"github.com/mailkeeper/agent/core/service/suggestion"
)

func unmarshalMessage(raw []byte, msg *domain.Message) error {
	return json.Unmarshal(raw, msg)
}

// Config holds the per-task tunables from §6's `autonomous_tasks.<task>.*`
// config keys.
type Config struct {
	ArchiveAfterDays           int
	ArchiveAllowedPurposes     []string
	ArchiveConfidenceThreshold float64
	ArchiveExcludedSenders     []string

	DailySummaryHourUTC int

	FollowUpRemindDays int

	ReEvaluateBatchSize int

	MeetingPrepConfidenceThreshold float64
	MeetingPrepAgentLabel          string

	TaskIntervals map[in.AutonomousTask]time.Duration
}

// defaultIntervals are §4.N's per-task cadence defaults: how often RunTask
// is allowed to actually do work for a given user/task pair.
func defaultIntervals() map[in.AutonomousTask]time.Duration {
	return map[in.AutonomousTask]time.Duration{
		in.TaskAutoArchive:        60 * time.Minute,
		in.TaskDailySummary:       60 * time.Minute,
		in.TaskFollowUpDetection:  60 * time.Minute,
		in.TaskReEvaluateUnknowns: 1440 * time.Minute,
		in.TaskMeetingPrep:        15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.ArchiveAfterDays == 0 {
		c.ArchiveAfterDays = 14
	}
	if len(c.ArchiveAllowedPurposes) == 0 {
		c.ArchiveAllowedPurposes = []string{string(domain.PurposePromotion)}
	}
	if c.ArchiveConfidenceThreshold == 0 {
		c.ArchiveConfidenceThreshold = domain.AutonomyThresholds[domain.ActionKindArchive]
	}
	if c.FollowUpRemindDays == 0 {
		c.FollowUpRemindDays = 3
	}
	if c.ReEvaluateBatchSize == 0 {
		c.ReEvaluateBatchSize = 20
	}
	if c.MeetingPrepConfidenceThreshold == 0 {
		c.MeetingPrepConfidenceThreshold = 0.7
	}
	if c.MeetingPrepAgentLabel == "" {
		c.MeetingPrepAgentLabel = "mailagent"
	}
	if c.TaskIntervals == nil {
		c.TaskIntervals = defaultIntervals()
	}
	return c
}

type Scheduler struct {
	mail        out.MailProviderPort
	store       out.DocumentStore
	calendar    out.CalendarPort
	analyzer    *analyzer.Analyzer
	suggester   *suggestion.Generator
	memory      *memory.Memory
	actionQueue in.ActionQueueService
	broadcaster *realtime.Broadcaster
	config      Config
}

func New(
	mail out.MailProviderPort,
	store out.DocumentStore,
	calendar out.CalendarPort,
	an *analyzer.Analyzer,
	suggester *suggestion.Generator,
	mem *memory.Memory,
	actionQueue in.ActionQueueService,
	broadcaster *realtime.Broadcaster,
	config Config,
) *Scheduler {
	return &Scheduler{
		mail: mail, store: store, calendar: calendar, analyzer: an,
		suggester: suggester, memory: mem, actionQueue: actionQueue,
		broadcaster: broadcaster, config: config.withDefaults(),
	}
}

var _ in.SchedulerService = (*Scheduler)(nil)

// RunTask implements §4.N's gate and dispatch: autonomous-mode check,
// per-task cadence (last_run_utc vs configured interval), then execution.
// Safe to call on a tight ticker — most calls are no-ops until their
// interval elapses.
func (s *Scheduler) RunTask(ctx context.Context, userID string, task in.AutonomousTask) error {
	profile, err := s.memory.Profile(ctx, userID)
	if err != nil {
		return fmt.Errorf("scheduler: load profile: %w", err)
	}
	if !profile.AgentPreferences.AutonomousModeEnabled {
		return nil
	}
	if state, ok := profile.AutonomousTasks[string(task)]; ok && state.LastRunUTC != nil {
		if interval, ok := s.config.TaskIntervals[task]; ok && time.Since(*state.LastRunUTC) < interval {
			return nil
		}
	}

	s.broadcaster.Emit(ctx, userID, domain.EventSystemStatusUpdate, domain.ActivityStatusStarted, string(task), nil)

	var runErr error
	switch task {
	case in.TaskAutoArchive:
		runErr = s.autoArchive(ctx, userID, profile)
	case in.TaskDailySummary:
		runErr = s.dailySummary(ctx, userID, profile)
	case in.TaskFollowUpDetection:
		runErr = s.followUpDetection(ctx, userID)
	case in.TaskReEvaluateUnknowns:
		runErr = s.reEvaluateUnknowns(ctx, userID)
	case in.TaskMeetingPrep:
		runErr = s.meetingPrep(ctx, userID)
	default:
		runErr = fmt.Errorf("scheduler: unknown task %q", task)
	}

	status := domain.ActivityStatusCompleted
	summary := fmt.Sprintf("%s completed", task)
	if runErr != nil {
		status = domain.ActivityStatusFailed
		summary = fmt.Sprintf("%s failed: %v", task, runErr)
	}
	s.broadcaster.Emit(ctx, userID, domain.EventSystemStatusUpdate, status, string(task), nil)

	now := time.Now().UTC()
	_ = s.memory.UpdateProfile(ctx, userID, map[string]interface{}{
		"last_autonomous_run_summary":        summary,
		"autonomous_tasks." + string(task): domain.AutonomousTaskState{LastRunUTC: &now},
	})

	return runErr
}

// autoArchive implements §4.N task 1: archive low-value messages older than
// the configured window, excluding named senders/domains.
func (s *Scheduler) autoArchive(ctx context.Context, userID string, profile *domain.UserProfile) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.ArchiveAfterDays)

	var candidates []domain.Message
	err := s.store.Where(ctx, out.CollectionMessages,
		out.Filter{"user_id": userID},
		[]out.OrderBy{{Field: "processed_timestamp", Descending: false}}, 0,
		func(raw []byte) error {
			var msg domain.Message
			if err := unmarshalMessage(raw, &msg); err != nil {
				return err
			}
			candidates = append(candidates, msg)
			return nil
		},
	)
	if err != nil {
		return err
	}

	excluded := map[string]bool{}
	for _, sender := range s.config.ArchiveExcludedSenders {
		excluded[strings.ToLower(sender)] = true
	}

	for _, msg := range candidates {
		if msg.IsArchived || msg.ProcessedTimestamp.After(cutoff) {
			continue
		}
		if excluded[strings.ToLower(msg.Sender.Address)] || excluded[strings.ToLower(feature.SenderDomain(msg.Sender.Address))] {
			continue
		}
		if !qualifiesForArchive(msg, s.config) {
			continue
		}
		messageID := msg.MessageID
		if _, err := s.actionQueue.Enqueue(ctx, userID, &messageID, domain.ActionArchive, map[string]interface{}{
			"message_id": msg.MessageID,
		}); err != nil {
			continue
		}
	}
	return nil
}

func qualifiesForArchive(msg domain.Message, cfg Config) bool {
	if msg.Priority == nil || (*msg.Priority != domain.PriorityLow && *msg.Priority != domain.PriorityMedium) {
		return false
	}
	if msg.ReasoningRecord == nil || msg.ReasoningRecord.Confidence < cfg.ArchiveConfidenceThreshold {
		return false
	}
	if msg.Purpose == nil {
		return false
	}
	for _, p := range cfg.ArchiveAllowedPurposes {
		if string(*msg.Purpose) == p {
			return true
		}
	}
	return false
}

// dailySummary implements §4.N task 2: once per configured UTC hour, digest
// the last 24h of CRITICAL/HIGH messages and draft it to the user.
func (s *Scheduler) dailySummary(ctx context.Context, userID string, profile *domain.UserProfile) error {
	if !profile.AgentPreferences.DailySummaryEnabled {
		return nil
	}
	if time.Now().UTC().Hour() != s.config.DailySummaryHourUTC {
		return nil
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	var important []*domain.Message
	err := s.store.Where(ctx, out.CollectionMessages, out.Filter{"user_id": userID}, nil, 0, func(raw []byte) error {
		var msg domain.Message
		if err := unmarshalMessage(raw, &msg); err != nil {
			return err
		}
		if msg.ProcessedTimestamp.Before(since) {
			return nil
		}
		if msg.Priority != nil && (*msg.Priority == domain.PriorityCritical || *msg.Priority == domain.PriorityHigh) {
			important = append(important, &msg)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(important) == 0 {
		return nil
	}

	insight, err := s.suggester.SuggestBatchInsights(ctx, important, nil)
	if err != nil {
		return err
	}

	_, err = s.actionQueue.Enqueue(ctx, userID, nil, domain.ActionSendDraft, map[string]interface{}{
		"to":      userID,
		"subject": "Your daily email digest",
		"body":    insight.Overview,
		"is_html": false,
	})
	return err
}

// followUpDetection implements §4.N task 3: flag sent threads that never
// got a reply after remind_days. A thread counts as replied-to once it
// holds more than the one sent message the loop is inspecting; the port
// surface has no per-message timestamp on thread listings, so "any message
// strictly after the original" is approximated by thread size.
func (s *Scheduler) followUpDetection(ctx context.Context, userID string) error {
	lookback := s.config.FollowUpRemindDays + 15
	sent, err := s.mail.ListMessages(ctx, userID, []string{"SENT"}, "", 200)
	if err != nil || len(sent) == 0 {
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -lookback)
	remindCutoff := time.Now().UTC().AddDate(0, 0, -s.config.FollowUpRemindDays)

	seenThreads := map[string]bool{}
	for _, ref := range sent {
		if seenThreads[ref.ThreadID] {
			continue
		}
		seenThreads[ref.ThreadID] = true

		raw, err := s.mail.GetMessage(ctx, userID, ref.ID)
		if err != nil || raw == nil {
			continue
		}
		if raw.Date.Before(cutoff) || !raw.Date.Before(remindCutoff) {
			continue
		}

		threadMsgs, err := s.mail.ListThreadMessages(ctx, userID, ref.ThreadID)
		if err != nil || len(threadMsgs) > 1 {
			continue
		}

		taskID := "follow_up:" + ref.ID
		var existing domain.Task
		if err := s.store.GetByID(ctx, out.CollectionUserTasks, taskID, &existing); err == nil {
			continue
		}

		task := domain.Task{
			TaskID:           taskID,
			UserID:           userID,
			TaskType:         domain.TaskTypeFollowUpNeeded,
			TaskDescription:  "No reply received to: " + raw.Subject,
			RelatedMessageID: ref.ID,
			CreationMethod:   domain.CreationMethodAutonomous,
			Status:           domain.TaskStatusOpen,
			CreatedAt:        time.Now().UTC(),
		}
		if err := s.store.Set(ctx, out.CollectionUserTasks, taskID, task); err != nil {
			return err
		}
	}
	return nil
}

// reEvaluateUnknowns implements §4.N task 4: re-run the analyzer on up to
// ReEvaluateBatchSize messages still purposed "unknown".
func (s *Scheduler) reEvaluateUnknowns(ctx context.Context, userID string) error {
	var candidates []domain.Message
	err := s.store.Where(ctx, out.CollectionMessages, out.Filter{"user_id": userID, "purpose": domain.PurposeUnknown},
		nil, s.config.ReEvaluateBatchSize, func(raw []byte) error {
			var msg domain.Message
			if err := unmarshalMessage(raw, &msg); err != nil {
				return err
			}
			candidates = append(candidates, msg)
			return nil
		},
	)
	if err != nil {
		return err
	}

	for _, msg := range candidates {
		analysis, err := s.analyzer.Analyze(ctx, &msg)
		if err != nil || analysis == nil || analysis.Purpose == domain.PurposeUnknown {
			continue
		}
		if err := s.store.PartialUpdate(ctx, out.CollectionMessages, msg.UserID+":"+msg.MessageID, map[string]interface{}{
			"purpose": analysis.Purpose,
		}); err != nil {
			return err
		}
	}
	return nil
}

// meetingPrep implements §4.N task 5: extract a draft calendar event for
// unprocessed, high-priority, meeting-shaped messages.
func (s *Scheduler) meetingPrep(ctx context.Context, userID string) error {
	var candidates []domain.Message
	err := s.store.Where(ctx, out.CollectionMessages, out.Filter{"user_id": userID, "meeting_processed": false},
		nil, 0, func(raw []byte) error {
			var msg domain.Message
			if err := unmarshalMessage(raw, &msg); err != nil {
				return err
			}
			candidates = append(candidates, msg)
			return nil
		},
	)
	if err != nil {
		return err
	}

	for _, msg := range candidates {
		if msg.Priority == nil || (*msg.Priority != domain.PriorityCritical && *msg.Priority != domain.PriorityHigh) {
			continue
		}
		if msg.Purpose == nil || *msg.Purpose != domain.PurposeMeetingInvite {
			continue
		}

		confidence := 0.0
		if msg.ReasoningRecord != nil {
			confidence = msg.ReasoningRecord.Confidence
		}
		if confidence >= s.config.MeetingPrepConfidenceThreshold {
			event := out.CalendarEvent{
				Title: fmt.Sprintf("[DRAFT by %s] %s", s.config.MeetingPrepAgentLabel, msg.Subject),
				Notes: msg.Snippet,
			}
			_, _ = s.calendar.CreateDraftEvent(ctx, userID, event)
		}

		if err := s.store.PartialUpdate(ctx, out.CollectionMessages, msg.UserID+":"+msg.MessageID, map[string]interface{}{
			"meeting_processed": true,
		}); err != nil {
			return err
		}
	}
	return nil
}
