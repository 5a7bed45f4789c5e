// Package reasoning implements the explainable classification engine
// (§4.H): a deterministic, weighted, step-recorded decision chain combining
// user feedback, rule lookup, an online language model, and a trained
// classifier.
//
// Generalized from the teacher's ScorePipeline/ScoreClassifier stage-
// composition idiom (core/service/classification/worker_score_pipeline.go),
// replacing its score-highest-wins aggregation with this module's
// deterministic, short-circuiting chain and exact precedence table.
package reasoning

import (
	"context"
	"strconv"
	"strings"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/service/classifier"
	"github.com/mailkeeper/agent/core/service/feature"
)

// Analysis is the Analyzer's (§4.I) structured output.
type Analysis struct {
	UrgencyScore     int
	Purpose          domain.Purpose
	ResponseNeeded   bool
	EstimatedMinutes int
}

// Analyzer produces structured analysis for a message, or nil on failure
// (fail-open per §4.L).
type Analyzer interface {
	Analyze(ctx context.Context, msg *domain.Message) (*Analysis, error)
}

// ClassifierPort is the trained classifier's prediction surface (§4.G).
type ClassifierPort interface {
	Predict(f classifier.Features) (priority domain.Priority, confidence float64, ok bool)
}

// Config holds the engine's rule lists and thresholds (§6 classification.*
// config keys).
type Config struct {
	CriticalSenders            []string // domain matches (@example.com) or substring matches
	LowPrioritySenderKeywords  []string
	LowPrioritySubjectKeywords []string
	HighPrioritySubjectKeywords []string
}

// Engine composes the decision chain. Either Analyzer or ClassifierPort may
// be nil; the chain degrades gracefully per the unified-decision table.
type Engine struct {
	analyzer   Analyzer
	classifier ClassifierPort
	config     Config
}

func New(analyzer Analyzer, clf ClassifierPort, config Config) *Engine {
	return &Engine{analyzer: analyzer, classifier: clf, config: config}
}

// Classify runs the weighted decision chain for msg and returns the
// resulting ReasoningRecord plus the Analysis if one was produced (the
// pipeline needs the latter even when a non-LLM branch decided priority,
// per §4.L step 5 "ensure analysis exists").
func (e *Engine) Classify(ctx context.Context, msg *domain.Message, feedbackMap domain.FeedbackMap, userImportantSenders []string) (*domain.ReasoningRecord, *Analysis, error) {
	senderKey := feature.SenderKey(msg.Sender.Raw)

	record := &domain.ReasoningRecord{
		DecisionFactors: map[string]float64{},
	}

	// Step 1: feedback check — short-circuits the entire chain.
	if corrected, ok := feedbackMap[senderKey]; ok {
		step := domain.ReasoningStep{
			StepType:    domain.StepFeedbackCheck,
			Description: "prior user correction for sender " + senderKey,
			Weight:      1.0,
			Confidence:  0.95,
			Result:      string(corrected),
		}
		record.Chain = append(record.Chain, step)
		record.Priority = corrected
		record.Confidence = 0.95
		record.DecisionMethod = domain.DecisionFeedbackHistory
		record.Explanation = append(record.Explanation, step.Description)
		record.DecisionFactors["feedback_history"] = 1.0
		return record, nil, nil
	}

	// Step 2: LLM analysis.
	var analysis *Analysis
	if e.analyzer != nil {
		if a, err := e.analyzer.Analyze(ctx, msg); err == nil && a != nil {
			analysis = a
			confidence := clamp01(min(0.9, float64(a.UrgencyScore)/5*0.8+0.2))
			step := domain.ReasoningStep{
				StepType:    domain.StepLLMAnalysis,
				Description: "llm analysis: urgency=" + strconv.Itoa(a.UrgencyScore) + " purpose=" + string(a.Purpose),
				Weight:      0.8,
				Confidence:  confidence,
			}
			record.Chain = append(record.Chain, step)
			record.DecisionFactors["llm_analysis"] = confidence
		}
	}

	// Step 3: classifier prediction.
	var (
		classifierPriority   domain.Priority
		classifierConfidence float64
		classifierPresent    bool
	)
	if e.classifier != nil {
		purpose := ""
		urgency := 0
		if analysis != nil {
			purpose = string(analysis.Purpose)
			urgency = analysis.UrgencyScore
		}
		if p, conf, ok := e.classifier.Predict(classifier.Features{
			TextFeatures: feature.TextFeatures(msg.Subject, msg.BodyText),
			LLMPurpose:   purpose,
			SenderDomain: feature.SenderDomain(msg.Sender.Raw),
			LLMUrgency:   urgency,
		}); ok {
			classifierPriority, classifierConfidence, classifierPresent = p, conf, true
			step := domain.ReasoningStep{
				StepType:    domain.StepMLPrediction,
				Description: "classifier predicted " + string(p),
				Weight:      0.7,
				Confidence:  clamp01(conf),
				Result:      string(p),
			}
			record.Chain = append(record.Chain, step)
			record.DecisionFactors["ml_prediction"] = clamp01(conf)
		}
	}

	// Step 4: critical-sender rule.
	criticalMatch := e.matchesCriticalSender(msg.Sender.Raw, userImportantSenders)
	if criticalMatch {
		step := domain.ReasoningStep{
			StepType:    domain.StepRuleMatch,
			Description: "sender matches critical-sender rule",
			Weight:      0.9,
			Confidence:  0.95,
			Result:      string(domain.PriorityCritical),
		}
		record.Chain = append(record.Chain, step)
		record.DecisionFactors["critical_sender"] = 0.95
	}

	// Step 5: keyword rules.
	highKeywordHit := false
	lowKeywordHit := false
	subjectLower := strings.ToLower(msg.Subject)
	senderLower := strings.ToLower(msg.Sender.Raw)

	for _, kw := range e.config.LowPrioritySenderKeywords {
		if kw != "" && strings.Contains(senderLower, strings.ToLower(kw)) {
			lowKeywordHit = true
			record.Chain = append(record.Chain, domain.ReasoningStep{
				StepType: domain.StepRuleMatch, Description: "low-priority sender keyword: " + kw,
				Weight: 0.4, Confidence: 0.8, Result: string(domain.PriorityLow),
			})
		}
	}
	for _, kw := range e.config.LowPrioritySubjectKeywords {
		if kw != "" && strings.Contains(subjectLower, strings.ToLower(kw)) {
			lowKeywordHit = true
			record.Chain = append(record.Chain, domain.ReasoningStep{
				StepType: domain.StepRuleMatch, Description: "low-priority subject keyword: " + kw,
				Weight: 0.4, Confidence: 0.8, Result: string(domain.PriorityLow),
			})
		}
	}
	for _, kw := range e.config.HighPrioritySubjectKeywords {
		if kw != "" && strings.Contains(subjectLower, strings.ToLower(kw)) {
			highKeywordHit = true
			record.Chain = append(record.Chain, domain.ReasoningStep{
				StepType: domain.StepRuleMatch, Description: "high-priority subject keyword: " + kw,
				Weight: 0.5, Confidence: 0.8, Result: string(domain.PriorityHigh),
			})
		}
	}

	// Step 6: unified decision.
	var priority domain.Priority
	var confidence float64
	var method domain.DecisionMethod

	switch {
	case criticalMatch:
		priority, confidence, method = domain.PriorityCritical, 0.95, domain.DecisionCriticalSender

	case classifierPresent && classifierConfidence > 0.7:
		priority, confidence, method = classifierPriority, classifierConfidence, domain.DecisionClassifier

	case analysis != nil:
		priority, confidence = decideFromAnalysis(analysis)
		method = domain.DecisionLLMAnalysis
		if highKeywordHit && priority != domain.PriorityCritical {
			priority = domain.PriorityHigh
			confidence = clamp01(confidence + 0.05)
		} else if lowKeywordHit && priority != domain.PriorityCritical && priority != domain.PriorityHigh {
			priority = domain.PriorityLow
			confidence = clampFloor(confidence-0.05, 0.60)
		}

	default:
		method = domain.DecisionRuleOnly
		switch {
		case highKeywordHit:
			priority, confidence = domain.PriorityHigh, 0.60
		case lowKeywordHit:
			priority, confidence = domain.PriorityLow, 0.60
		default:
			priority, confidence = domain.PriorityMedium, 0.50
		}
	}

	record.Priority = priority
	record.Confidence = confidence
	record.DecisionMethod = method
	record.Explanation = chainDescriptions(record.Chain)

	return record, analysis, nil
}

func decideFromAnalysis(a *Analysis) (domain.Priority, float64) {
	isActionOrQuestion := a.Purpose == domain.PurposeActionRequest || a.Purpose == domain.PurposeQuestion

	switch {
	case a.UrgencyScore >= 5 && a.ResponseNeeded && a.EstimatedMinutes > 10:
		return domain.PriorityCritical, 0.90
	case a.UrgencyScore >= 4 || (a.ResponseNeeded && isActionOrQuestion):
		return domain.PriorityHigh, 0.85
	case a.UrgencyScore >= 3 || isActionOrQuestion || a.Purpose == domain.PurposeMeetingInvite || a.ResponseNeeded:
		return domain.PriorityMedium, 0.80
	default:
		return domain.PriorityLow, 0.75
	}
}

func (e *Engine) matchesCriticalSender(rawSender string, userImportantSenders []string) bool {
	domainOf := feature.SenderDomain(rawSender)
	senderLower := strings.ToLower(rawSender)

	all := make([]string, 0, len(e.config.CriticalSenders)+len(userImportantSenders))
	all = append(all, e.config.CriticalSenders...)
	all = append(all, userImportantSenders...)

	for _, rule := range all {
		if rule == "" {
			continue
		}
		if strings.HasPrefix(rule, "@") {
			if strings.EqualFold(strings.TrimPrefix(rule, "@"), domainOf) {
				return true
			}
			continue
		}
		if strings.Contains(senderLower, strings.ToLower(rule)) {
			return true
		}
	}
	return false
}

func chainDescriptions(chain []domain.ReasoningStep) []string {
	out := make([]string, len(chain))
	for i, s := range chain {
		out[i] = s.Description
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFloor(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}
