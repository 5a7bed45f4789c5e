package reasoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeeper/agent/core/domain"
)

type stubAnalyzer struct {
	analysis *Analysis
	err      error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, msg *domain.Message) (*Analysis, error) {
	return s.analysis, s.err
}

func TestEngine_FeedbackCheckShortCircuits(t *testing.T) {
	engine := New(nil, nil, Config{})
	msg := &domain.Message{Sender: domain.Sender{Raw: "Alice <alice@example.com>"}}
	feedbackMap := domain.FeedbackMap{"alice@example.com": domain.PriorityLow}

	record, analysis, err := engine.Classify(context.Background(), msg, feedbackMap, nil)

	require.NoError(t, err)
	assert.Nil(t, analysis)
	assert.Equal(t, domain.PriorityLow, record.Priority)
	assert.Equal(t, domain.DecisionFeedbackHistory, record.DecisionMethod)
	assert.Equal(t, 0.95, record.Confidence)
	assert.Len(t, record.Chain, 1)
	assert.Equal(t, domain.StepFeedbackCheck, record.Chain[0].StepType)
}

func TestEngine_CriticalSenderWins(t *testing.T) {
	engine := New(nil, nil, Config{CriticalSenders: []string{"@vip.example.com"}})
	msg := &domain.Message{Sender: domain.Sender{Raw: "Boss <boss@vip.example.com>"}}

	record, _, err := engine.Classify(context.Background(), msg, domain.FeedbackMap{}, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.PriorityCritical, record.Priority)
	assert.Equal(t, domain.DecisionCriticalSender, record.DecisionMethod)
	assert.Equal(t, 0.95, record.Confidence)
}

func TestEngine_RuleOnlyDefaultsToMedium(t *testing.T) {
	engine := New(nil, nil, Config{})
	msg := &domain.Message{Sender: domain.Sender{Raw: "bob@example.com"}, Subject: "hello"}

	record, _, err := engine.Classify(context.Background(), msg, domain.FeedbackMap{}, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, record.Priority)
	assert.Equal(t, domain.DecisionRuleOnly, record.DecisionMethod)
	assert.Equal(t, 0.50, record.Confidence)
}

func TestEngine_LLMAnalysisCriticalPath(t *testing.T) {
	analyzer := &stubAnalyzer{analysis: &Analysis{
		UrgencyScore:     5,
		Purpose:          domain.PurposeActionRequest,
		ResponseNeeded:   true,
		EstimatedMinutes: 15,
	}}
	engine := New(analyzer, nil, Config{})
	msg := &domain.Message{Sender: domain.Sender{Raw: "bob@example.com"}, Subject: "need approval"}

	record, analysis, err := engine.Classify(context.Background(), msg, domain.FeedbackMap{}, nil)

	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, domain.PriorityCritical, record.Priority)
	assert.Equal(t, domain.DecisionLLMAnalysis, record.DecisionMethod)
	assert.InDelta(t, 0.90, record.Confidence, 1e-9)
}

func TestEngine_HighKeywordBumpsLLMDecision(t *testing.T) {
	analyzer := &stubAnalyzer{analysis: &Analysis{
		UrgencyScore: 2,
		Purpose:      domain.PurposeInformation,
	}}
	engine := New(analyzer, nil, Config{HighPrioritySubjectKeywords: []string{"urgent"}})
	msg := &domain.Message{Sender: domain.Sender{Raw: "bob@example.com"}, Subject: "URGENT: read now"}

	record, _, err := engine.Classify(context.Background(), msg, domain.FeedbackMap{}, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, record.Priority)
	assert.InDelta(t, 0.80, record.Confidence, 1e-9) // 0.75 base + 0.05 bump
}

func TestEngine_AutonomyThresholds(t *testing.T) {
	record := &domain.ReasoningRecord{Confidence: 0.96}
	assert.True(t, record.Authorizes(domain.ActionKindArchive))
	assert.True(t, record.Authorizes(domain.ActionKindSuggestion))

	low := &domain.ReasoningRecord{Confidence: 0.72}
	assert.False(t, low.Authorizes(domain.ActionKindArchive))
	assert.True(t, low.Authorizes(domain.ActionKindSuggestion))
}
