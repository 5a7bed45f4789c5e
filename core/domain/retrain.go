package domain

import "time"

// RetrainState is the classifier retraining bookkeeping blob (§3, §6
// "Persisted state layout"). Persisted as JSON via the Blob/Model Store.
type RetrainState struct {
	LastFeedbackCount int        `json:"last_feedback_count"`
	LastUpdatedUTC    *time.Time `json:"last_updated_utc"`
}

// TrainingRow is the concrete feature row the Retraining Controller
// assembles from feedback + message joins (§3.1, §4.O "Data build"),
// matching ml_utils.py's FEATURE_COLUMNS.
type TrainingRow struct {
	TextFeatures      string   `json:"text_features"`
	LLMPurpose        string   `json:"llm_purpose"`
	SenderDomain      string   `json:"sender_domain"`
	LLMUrgency        int      `json:"llm_urgency"`
	CorrectedPriority Priority `json:"corrected_priority"`
}

// ClassifierArtifact is the serialized (pipeline, label_encoder) pair
// persisted through C under a versioned prefix (§4.G).
type ClassifierArtifact struct {
	Version int `json:"version"`

	// Vocabulary maps a TF-IDF n-gram to its column index.
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`

	// One-hot category maps, rare categories folded into "__other__".
	PurposeCategories map[string]int `json:"purpose_categories"`
	DomainCategories  map[string]int `json:"domain_categories"`

	// Linear classifier weights: one row per label class, one column per
	// feature (bias term appended as the last column).
	Weights [][]float64 `json:"weights"`
	Classes []Priority  `json:"classes"`
}
