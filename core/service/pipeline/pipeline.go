// Package pipeline implements the Email Pipeline (§4.L): the sequence that
// turns an unread message ID into one persisted, fully reasoned record.
//
// Grounded on the teacher's worker-pool job shape (adapter/in/worker/worker_pool.go
// messageWorker): one job per user, processed sequentially within the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/feedback"
	"github.com/mailkeeper/agent/core/service/memory"
	"github.com/mailkeeper/agent/core/service/realtime"
	"github.com/mailkeeper/agent/core/service/reasoning"
	"github.com/mailkeeper/agent/core/service/suggestion"
	"github.com/mailkeeper/agent/pkg/metrics"
)

// Analyzer is the subset of the analyzer package's surface the pipeline
// calls directly, beyond what reasoning.Engine already uses internally.
type Analyzer interface {
	reasoning.Analyzer
	Summarize(ctx context.Context, msg *domain.Message, summaryType domain.SummaryType) string
}

type Pipeline struct {
	mail        out.MailProviderPort
	store       out.DocumentStore
	llm         out.LLMPort
	engine      *reasoning.Engine
	analyzer    Analyzer
	suggester   *suggestion.Generator
	memory      *memory.Memory
	feedback    *feedback.Intake
	actionQueue in.ActionQueueService
	broadcaster *realtime.Broadcaster
}

func New(
	mail out.MailProviderPort,
	store out.DocumentStore,
	llm out.LLMPort,
	engine *reasoning.Engine,
	analyzer Analyzer,
	suggester *suggestion.Generator,
	mem *memory.Memory,
	fb *feedback.Intake,
	actionQueue in.ActionQueueService,
	broadcaster *realtime.Broadcaster,
) *Pipeline {
	return &Pipeline{
		mail:        mail,
		store:       store,
		llm:         llm,
		engine:      engine,
		analyzer:    analyzer,
		suggester:   suggester,
		memory:      mem,
		feedback:    fb,
		actionQueue: actionQueue,
		broadcaster: broadcaster,
	}
}

var _ in.PipelineService = (*Pipeline)(nil)

const maxSuggestionsPerMessage = 3

// ProcessInbox implements §4.L's 12-step operation.
func (p *Pipeline) ProcessInbox(ctx context.Context, userID string, maxResults int) (int, error) {
	profile, err := p.memory.Profile(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("pipeline: load profile: %w", err)
	}

	feedbackMap, err := p.feedback.FeedbackMap(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("pipeline: load feedback map: %w", err)
	}

	// Step 1: list unread IDs from D, bounded by max_results.
	refs, err := p.mail.ListMessages(ctx, userID, []string{"INBOX", "UNREAD"}, "", maxResults)
	if err != nil {
		return 0, fmt.Errorf("pipeline: list messages: %w", err)
	}

	processed := 0
	for _, ref := range refs {
		if p.alreadyProcessed(ctx, userID, ref.ID) {
			continue
		}

		if err := p.processOne(ctx, userID, ref.ID, profile, feedbackMap); err != nil {
			continue
		}
		processed++
	}

	return processed, nil
}

// alreadyProcessed implements step 2's idempotency check.
func (p *Pipeline) alreadyProcessed(ctx context.Context, userID, messageID string) bool {
	var existing domain.Message
	err := p.store.GetByID(ctx, out.CollectionMessages, messageDocID(userID, messageID), &existing)
	return err == nil
}

func (p *Pipeline) processOne(ctx context.Context, userID, messageID string, profile *domain.UserProfile, feedbackMap domain.FeedbackMap) error {
	start := time.Now()
	defer metrics.RecordLatency("pipeline.process_one", time.Since(start))

	raw, err := p.mail.GetMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}

	msg := &domain.Message{
		UserID:     userID,
		MessageID:  raw.MessageID,
		ThreadID:   raw.ThreadID,
		Sender:     parseSender(raw.FromRaw),
		Subject:    raw.Subject,
		ReceivedAt: raw.Date,
		Snippet:    raw.Snippet,
		Labels:     raw.Labels,
	}
	msg.IsRead, msg.IsStarred, msg.IsArchived = labelBooleans(raw.Labels)

	text, html := decodeBody(raw)
	msg.BodyText, msg.BodyHTML = text, html

	p.broadcaster.Emit(ctx, userID, domain.EventEmailProcessingStarted, domain.ActivityStatusStarted, "parse", map[string]interface{}{
		"message_id": msg.MessageID,
		"subject":    truncate(msg.Subject, 100),
		"sender":     msg.Sender.Address,
	})

	// Step 4: invoke the reasoning engine.
	classifyStart := time.Now()
	record, analysis, err := p.engine.Classify(ctx, msg, feedbackMap, profile.EmailPreferences.ImportantSenders)
	metrics.RecordLatency("pipeline.classify", time.Since(classifyStart))
	if err != nil {
		return err
	}
	msg.ReasoningRecord = record
	msg.Priority = &record.Priority

	p.broadcaster.Emit(ctx, userID, domain.EventClassificationComplete, domain.ActivityStatusCompleted, "classify", map[string]interface{}{
		"message_id": msg.MessageID,
		"priority":   record.Priority,
		"confidence": record.Confidence,
	})

	// Step 5: ensure analysis exists.
	if analysis == nil {
		if a, err := p.analyzer.Analyze(ctx, msg); err == nil {
			analysis = a
		}
	}
	if analysis != nil {
		msg.Urgency = &analysis.UrgencyScore
		purpose := analysis.Purpose
		msg.Purpose = &purpose
		msg.ResponseNeeded = &analysis.ResponseNeeded
		msg.EstimatedMinutes = &analysis.EstimatedMinutes

		p.broadcaster.Emit(ctx, userID, domain.EventLLMAnalysisComplete, domain.ActivityStatusCompleted, "analyze", map[string]interface{}{
			"message_id": msg.MessageID,
			"purpose":    purpose,
			"priority":   record.Priority,
			"urgency":    analysis.UrgencyScore,
			"confidence": record.Confidence,
		})
	}

	// Step 6: conditional summarization.
	if record.Priority == domain.PriorityCritical || record.Priority == domain.PriorityHigh {
		summaryType := domain.SummaryStandard
		if analysis != nil && analysis.Purpose == domain.PurposeActionRequest {
			summaryType = domain.SummaryActionFocused
		}
		summary := p.analyzer.Summarize(ctx, msg, summaryType)
		msg.Summary = &summary
		msg.SummaryType = &summaryType
	}

	// Step 7: suggestion generation.
	msg.Suggestions = p.suggester.Suggest(ctx, msg, analysis)
	if len(msg.Suggestions) > maxSuggestionsPerMessage {
		msg.Suggestions = msg.Suggestions[:maxSuggestionsPerMessage]
	}
	if len(msg.Suggestions) > 0 {
		p.broadcaster.Emit(ctx, userID, domain.EventSuggestionGenerated, domain.ActivityStatusCompleted, "suggest", map[string]interface{}{
			"message_id": msg.MessageID,
			"suggestion": truncate(msg.Suggestions[0].Text, 300),
			"type":       msg.Suggestions[0].SuggestionType,
		})
	}

	// Step 8: conditional auto-categorization.
	if profile.AgentPreferences.AllowAutoCategorization {
		labels := []string{"Priority/" + string(record.Priority)}
		if analysis != nil {
			labels = append(labels, "Purpose/"+sanitizeLabel(string(analysis.Purpose)))
		}
		reqID, _ := p.actionQueue.Enqueue(ctx, userID, &msg.MessageID, domain.ActionApplyLabel, map[string]interface{}{
			"message_id": msg.MessageID,
			"labels":     labels,
		})
		p.broadcaster.Emit(ctx, userID, domain.EventActionQueued, domain.ActivityStatusStarted, "auto_categorize", map[string]interface{}{
			"action_id":   reqID,
			"message_id":  msg.MessageID,
			"action_type": domain.ActionApplyLabel,
			"status":      domain.ActionRequestPending,
		})
	}

	// Step 9: conditional auto-archive.
	if profile.AgentPreferences.AllowAutoArchiving && qualifiesForAutoArchive(record, analysis) {
		if err := p.mail.ModifyLabels(ctx, userID, msg.MessageID, nil, []string{"INBOX"}); err == nil {
			msg.IsArchived = true
			p.broadcaster.Emit(ctx, userID, domain.EventAutonomousActionExec, domain.ActivityStatusCompleted, "auto_archive", map[string]interface{}{
				"message_id": msg.MessageID,
				"action":     domain.ActionArchive,
				"details":    truncate("auto-archived "+string(record.Priority), 200),
			})
		}
	}

	// Step 10: conditional task extraction.
	if profile.AgentPreferences.AllowAutoTaskCreation {
		for _, task := range extractTasks(ctx, p.llm, msg) {
			_ = p.store.Set(ctx, out.CollectionUserTasks, task.TaskID, task)
		}
	}

	// Step 11: persist full record.
	if err := p.store.Set(ctx, out.CollectionMessages, messageDocID(userID, msg.MessageID), msg); err != nil {
		return err
	}
	p.broadcaster.Emit(ctx, userID, domain.EventEmailProcessingStarted, domain.ActivityStatusCompleted, "persist", map[string]interface{}{
		"message_id": msg.MessageID,
	})

	return nil
}

func qualifiesForAutoArchive(record *domain.ReasoningRecord, analysis *reasoning.Analysis) bool {
	if record.Priority != domain.PriorityLow && record.Priority != domain.PriorityMedium {
		return false
	}
	if !record.Authorizes(domain.ActionKindArchive) {
		return false
	}
	if analysis == nil {
		return false
	}
	return analysis.Purpose == domain.PurposePromotion || analysis.Purpose == domain.PurposeSocial
}

func messageDocID(userID, messageID string) string {
	return userID + ":" + messageID
}

func sanitizeLabel(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
