// Package classifier implements the trained priority classifier (§4.G):
// TF-IDF + one-hot feature vectorization and a hand-rolled logistic
// regression, since no Go ML library appears anywhere in the retrieval
// pack (see DESIGN.md).
package classifier

import (
	"fmt"
	"sync/atomic"

	"github.com/mailkeeper/agent/core/domain"
)

// Features is the input row the Reasoning Engine builds before prediction
// (§4.H step 3).
type Features struct {
	TextFeatures string
	LLMPurpose   string
	SenderDomain string
	LLMUrgency   int
}

// Classifier holds the current classifier artifact behind an atomic
// pointer, so a retrain's publish (§4.O) is a copy-on-replace swap that
// never blocks in-flight predictions (§5 "read-mostly... copy-on-replace").
type Classifier struct {
	artifact atomic.Pointer[domain.ClassifierArtifact]
}

// New returns a Classifier with no artifact loaded; Predict returns
// ok=false until Load is called.
func New() *Classifier {
	return &Classifier{}
}

// Load installs artifact as the active classifier.
func (c *Classifier) Load(artifact *domain.ClassifierArtifact) {
	c.artifact.Store(artifact)
}

// Predict returns the predicted priority and the model's own calibrated
// class probability for that label (§4.H "Confidence choice"). ok is false
// when no artifact is loaded.
func (c *Classifier) Predict(f Features) (priority domain.Priority, confidence float64, ok bool) {
	artifact := c.artifact.Load()
	if artifact == nil || len(artifact.Weights) == 0 {
		return "", 0, false
	}

	x := vectorize(artifact, f)
	probs := softmax(scoreAll(artifact.Weights, x))

	bestIdx, bestProb := 0, probs[0]
	for i, p := range probs[1:] {
		if p > bestProb {
			bestIdx, bestProb = i+1, p
		}
	}
	if bestIdx >= len(artifact.Classes) {
		return "", 0, false
	}
	return artifact.Classes[bestIdx], clamp01(bestProb), true
}

// Fit trains a new classifier artifact from assembled training rows
// (§4.O "Data build"/"Fit & publish").
func Fit(rows []domain.TrainingRow) (*domain.ClassifierArtifact, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("classifier: no training rows")
	}

	texts := make([]string, len(rows))
	purposes := make([]string, len(rows))
	domains := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.TextFeatures
		purposes[i] = r.LLMPurpose
		domains[i] = r.SenderDomain
	}

	vocab := BuildVocabulary(texts)
	purposeMap := BuildCategoryMap(purposes)
	domainMap := BuildCategoryMap(domains)

	classIndex := map[domain.Priority]int{}
	var classes []domain.Priority
	for _, r := range rows {
		if _, ok := classIndex[r.CorrectedPriority]; !ok {
			classIndex[r.CorrectedPriority] = len(classes)
			classes = append(classes, r.CorrectedPriority)
		}
	}

	artifact := &domain.ClassifierArtifact{
		Vocabulary:        vocab.Index,
		IDF:               vocab.IDF,
		PurposeCategories: purposeMap.Index,
		DomainCategories:  domainMap.Index,
		Classes:           classes,
	}

	featureRows := make([][]float64, len(rows))
	labels := make([]int, len(rows))
	for i, r := range rows {
		featureRows[i] = vectorize(artifact, Features{
			TextFeatures: r.TextFeatures,
			LLMPurpose:   r.LLMPurpose,
			SenderDomain: r.SenderDomain,
			LLMUrgency:   r.LLMUrgency,
		})
		labels[i] = classIndex[r.CorrectedPriority]
	}

	const epochs = 200
	const learningRate = 0.1
	const l2 = 0.001
	artifact.Weights = fitLogisticRegression(featureRows, labels, len(classes), epochs, learningRate, l2)

	return artifact, nil
}

func vectorize(artifact *domain.ClassifierArtifact, f Features) []float64 {
	textVec := (&Vocabulary{Index: artifact.Vocabulary, IDF: artifact.IDF}).Vectorize(f.TextFeatures)
	purposeVec := (&CategoryMap{Index: artifact.PurposeCategories, Size: len(artifact.PurposeCategories)}).OneHot(f.LLMPurpose)
	domainVec := (&CategoryMap{Index: artifact.DomainCategories, Size: len(artifact.DomainCategories)}).OneHot(f.SenderDomain)

	x := make([]float64, 0, len(textVec)+len(purposeVec)+len(domainVec)+2)
	x = append(x, textVec...)
	x = append(x, purposeVec...)
	x = append(x, domainVec...)
	x = append(x, float64(f.LLMUrgency)) // passthrough
	x = append(x, 1)                     // bias term
	return x
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
