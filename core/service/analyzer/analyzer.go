// Package analyzer implements the Summarizer & Analyzer (§4.I): structured
// urgency/purpose extraction and text summarization via the LLM client.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/reasoning"
)

const (
	defaultAnalysisMaxInputChars = 4000
	defaultSummaryMaxInputChars  = 6000
	analysisRetries              = 3
	analysisBaseBackoff          = 5 * time.Second
)

// Config holds the tunable limits from §6's ambient config table.
type Config struct {
	AnalysisMaxInputChars int
	SummaryMaxInputChars  int
}

func (c Config) withDefaults() Config {
	if c.AnalysisMaxInputChars == 0 {
		c.AnalysisMaxInputChars = defaultAnalysisMaxInputChars
	}
	if c.SummaryMaxInputChars == 0 {
		c.SummaryMaxInputChars = defaultSummaryMaxInputChars
	}
	return c
}

// Analyzer wraps an LLMPort to implement reasoning.Analyzer plus the
// Summarizer contract.
type Analyzer struct {
	llm    out.LLMPort
	config Config
}

func New(llm out.LLMPort, config Config) *Analyzer {
	return &Analyzer{llm: llm, config: config.withDefaults()}
}

var _ reasoning.Analyzer = (*Analyzer)(nil)

const analysisSystemPrompt = `You analyze an email and output strict JSON only, with keys:
urgency_score (integer 1-5), purpose (one of: promotion, transactional, social, alert, personal, forum_digest, action_required, information, question, meeting_invite, unknown), response_needed (boolean), estimated_minutes (integer). Output JSON only, no prose.`

type analysisJSON struct {
	UrgencyScore     int    `json:"urgency_score"`
	Purpose          string `json:"purpose"`
	ResponseNeeded   bool   `json:"response_needed"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// Analyze implements reasoning.Analyzer (§4.H step 2, §4.I "Analyzer
// contract"). Truncates the body, requires strict JSON output, retries up
// to analysisRetries times on transient/parse failure.
func (a *Analyzer) Analyze(ctx context.Context, msg *domain.Message) (*reasoning.Analysis, error) {
	body := truncate(msg.BodyText, a.config.AnalysisMaxInputChars)
	userPrompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", msg.Subject, body)

	var lastErr error
	for attempt := 0; attempt <= analysisRetries; attempt++ {
		raw, err := a.llm.Complete(ctx, analysisSystemPrompt, userPrompt, 300, 0.0)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(analysisBaseBackoff):
			}
			continue
		}

		var parsed analysisJSON
		if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
			lastErr = err
			continue
		}

		return &reasoning.Analysis{
			UrgencyScore:     parsed.UrgencyScore,
			Purpose:          domain.Purpose(parsed.Purpose),
			ResponseNeeded:   parsed.ResponseNeeded,
			EstimatedMinutes: parsed.EstimatedMinutes,
		}, nil
	}

	return nil, fmt.Errorf("analyzer: exhausted retries: %w", lastErr)
}

// Summarize implements the Summarizer contract (§4.I). Returns a sentinel
// "Error: ..." string on final failure rather than propagating the error,
// since a missing summary must never abort message persistence (§4.L
// "fail-open policy").
func (a *Analyzer) Summarize(ctx context.Context, msg *domain.Message, summaryType domain.SummaryType) string {
	body := truncate(msg.BodyText, a.config.SummaryMaxInputChars)
	system := summarizerSystemPrompt(summaryType)
	userPrompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", msg.Subject, body)

	raw, err := a.llm.Complete(ctx, system, userPrompt, 400, 0.3)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	return stripLeadingPhrases(raw)
}

func summarizerSystemPrompt(t domain.SummaryType) string {
	switch t {
	case domain.SummaryBrief:
		return "Summarize this email in one short sentence."
	case domain.SummaryDetailed:
		return "Summarize this email in detail, covering all key points."
	case domain.SummaryActionFocused:
		return "Summarize this email, focusing only on what action the recipient must take."
	default:
		return "Summarize this email concisely."
	}
}

var leadingPhrases = []string{
	"here is the summary:", "here's the summary:", "summary:", "here is a summary:",
}

func stripLeadingPhrases(s string) string {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	for _, phrase := range leadingPhrases {
		if strings.HasPrefix(lower, phrase) {
			trimmed = strings.TrimSpace(trimmed[len(phrase):])
			lower = strings.ToLower(trimmed)
		}
	}
	for {
		r, size := utf8.DecodeRuneInString(trimmed)
		if size == 0 || (r != '-' && r != '*' && r != '•') {
			break
		}
		trimmed = strings.TrimSpace(trimmed[size:])
	}
	return trimmed
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

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
