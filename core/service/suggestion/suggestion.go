// Package suggestion implements the Suggestion Generator (§4.J): per-email
// action suggestions and per-batch insights for the daily summary.
//
// Grounded on the teacher's suggestion-adjacent domain types
// (ScheduleSuggestion, ActionItem, formerly in core/domain/worker_email.go)
// generalized to the spec's Suggestion contract.
package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/reasoning"
)

const maxSuggestions = 3

const suggestSystemPrompt = `You generate up to 3 short, actionable suggestions for how the recipient should handle this email. Output strict JSON: {"suggestions":[{"text":"...","suggestion_type":"reply|schedule|archive|delegate|read_later","confidence":0.0-1.0}]}. Output JSON only.`

type suggestListJSON struct {
	Suggestions []struct {
		Text           string  `json:"text"`
		SuggestionType string  `json:"suggestion_type"`
		Confidence     float64 `json:"confidence"`
	} `json:"suggestions"`
}

// BatchInsight is what SuggestBatchInsights returns, feeding the daily
// summary (§4.N.2).
type BatchInsight struct {
	Overview       string
	TopSenderNotes []string
}

// Generator produces suggestions via the LLM client.
type Generator struct {
	llm out.LLMPort
}

func New(llm out.LLMPort) *Generator {
	return &Generator{llm: llm}
}

// Suggest returns up to maxSuggestions ordered suggestions, failing open to
// an empty slice on any LLM error (§4.J).
func (g *Generator) Suggest(ctx context.Context, msg *domain.Message, analysis *reasoning.Analysis) []domain.Suggestion {
	userPrompt := fmt.Sprintf("Subject: %s\nSnippet: %s", msg.Subject, msg.Snippet)
	if analysis != nil {
		userPrompt += fmt.Sprintf("\nPurpose: %s\nResponseNeeded: %v", analysis.Purpose, analysis.ResponseNeeded)
	}

	raw, err := g.llm.Complete(ctx, suggestSystemPrompt, userPrompt, 300, 0.4)
	if err != nil {
		return nil
	}

	var parsed suggestListJSON
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil
	}

	out := make([]domain.Suggestion, 0, maxSuggestions)
	for _, s := range parsed.Suggestions {
		if len(out) >= maxSuggestions {
			break
		}
		out = append(out, domain.Suggestion{
			Text:           s.Text,
			SuggestionType: s.SuggestionType,
			Confidence:     s.Confidence,
		})
	}
	return out
}

// SuggestBatchInsights feeds the daily summary (§4.N.2), ranking which
// messages merit a mention using the supplemented SenderProfile aggregate
// as an auxiliary signal (§3.1).
func (g *Generator) SuggestBatchInsights(ctx context.Context, messages []*domain.Message, senderProfiles map[string]*domain.SenderProfile) (BatchInsight, error) {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString("- ")
		sb.WriteString(m.Subject)
		sb.WriteString("\n")
	}

	raw, err := g.llm.Complete(ctx,
		"Summarize the following high-priority emails into a short overview for a daily digest.",
		sb.String(), 500, 0.4)
	if err != nil {
		return BatchInsight{}, err
	}

	notes := make([]string, 0, len(senderProfiles))
	for key, profile := range senderProfiles {
		if profile.ImportanceScore() >= 0.5 {
			notes = append(notes, key)
		}
	}

	return BatchInsight{Overview: strings.TrimSpace(raw), TopSenderNotes: notes}, nil
}

func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}
