package domain

// StepType enumerates the kind of evidence a ReasoningStep records (§3).
type StepType string

const (
	StepFeedbackCheck StepType = "feedback_check"
	StepLLMAnalysis   StepType = "llm_analysis"
	StepMLPrediction  StepType = "ml_prediction"
	StepRuleMatch     StepType = "rule_match"
)

// DecisionMethod names which branch of the unified decision (§4.H step 6)
// produced the final priority.
type DecisionMethod string

const (
	DecisionFeedbackHistory DecisionMethod = "feedback_history"
	DecisionCriticalSender  DecisionMethod = "critical_sender"
	DecisionClassifier      DecisionMethod = "classifier"
	DecisionLLMAnalysis     DecisionMethod = "llm_analysis"
	DecisionRuleOnly        DecisionMethod = "rule_only"
)

// ReasoningStep is one piece of evidence appended, in order, while the
// Reasoning Engine walks its decision chain (§4.H). Steps are append-only
// and frozen into the ReasoningRecord once the chain terminates (§9).
type ReasoningStep struct {
	StepType    StepType               `bson:"step_type" json:"step_type"`
	Description string                 `bson:"description" json:"description"`
	Weight      float64                `bson:"weight" json:"weight"`
	Confidence  float64                `bson:"confidence" json:"confidence"`
	Result      string                 `bson:"result,omitempty" json:"result,omitempty"`
	Details     map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
}

// ReasoningRecord is the persisted, explainable trace of a classification
// decision (§3).
type ReasoningRecord struct {
	Priority       Priority          `bson:"priority" json:"priority"`
	Confidence     float64           `bson:"confidence" json:"confidence"`
	DecisionMethod DecisionMethod    `bson:"decision_method" json:"decision_method"`
	Explanation    []string          `bson:"explanation" json:"explanation"`
	DecisionFactors map[string]float64 `bson:"decision_factors" json:"decision_factors"`
	Chain          []ReasoningStep   `bson:"chain" json:"chain"`
}

// ActionKind enumerates the side-effect kinds the autonomy gate is asked
// about (§4.H "Autonomy gate"). Distinct from ActionRequest.Action (§4.M),
// which enumerates concrete mail-provider operations.
type ActionKind string

const (
	ActionKindArchive        ActionKind = "archive"
	ActionKindLabel          ActionKind = "label"
	ActionKindPriorityAdjust ActionKind = "priority_adjust"
	ActionKindSuggestion     ActionKind = "suggestion"
)

// AutonomyThresholds are the fixed per-action-kind confidence gates from
// §4.H. Not user-configurable at this layer; the Autonomous Scheduler reads
// them through the reasoning package and intersects with user profile
// permission flags before acting.
var AutonomyThresholds = map[ActionKind]float64{
	ActionKindArchive:        0.95,
	ActionKindLabel:          0.85,
	ActionKindPriorityAdjust: 0.80,
	ActionKindSuggestion:     0.70,
}

// Authorizes reports whether record's confidence clears the fixed threshold
// for kind. Callers must additionally check the user profile's permission
// flag for the corresponding autonomous mode (§4.H).
func (r *ReasoningRecord) Authorizes(kind ActionKind) bool {
	threshold, ok := AutonomyThresholds[kind]
	if !ok {
		return false
	}
	return r.Confidence >= threshold
}
