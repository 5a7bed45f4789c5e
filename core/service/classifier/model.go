package classifier

import "math"

// fitLogisticRegression fits a multinomial (softmax) logistic regression
// via batch gradient descent with L2 regularization and class weighting
// (§4.G). rows are feature vectors (bias term appended by the caller);
// labels are integer class indices in [0, numClasses).
//
// No Go ML library exists in the example pack (see DESIGN.md), so this is
// hand-rolled on stdlib math — plain softmax gradient descent, no momentum
// or adaptive learning rate, since the training sets here are small
// (bounded by MIN_SAMPLES_FOR_TRAINING and the retrain cadence).
func fitLogisticRegression(rows [][]float64, labels []int, numClasses int, epochs int, learningRate, l2 float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	numFeatures := len(rows[0])

	classCounts := make([]float64, numClasses)
	for _, l := range labels {
		classCounts[l]++
	}
	classWeights := make([]float64, numClasses)
	n := float64(len(labels))
	for c := range classWeights {
		if classCounts[c] > 0 {
			classWeights[c] = n / (float64(numClasses) * classCounts[c])
		} else {
			classWeights[c] = 1
		}
	}

	weights := make([][]float64, numClasses)
	for c := range weights {
		weights[c] = make([]float64, numFeatures)
	}

	for epoch := 0; epoch < epochs; epoch++ {
		grad := make([][]float64, numClasses)
		for c := range grad {
			grad[c] = make([]float64, numFeatures)
		}

		for i, x := range rows {
			probs := softmax(scoreAll(weights, x))
			weight := classWeights[labels[i]]
			for c := 0; c < numClasses; c++ {
				target := 0.0
				if c == labels[i] {
					target = 1.0
				}
				errTerm := (probs[c] - target) * weight
				for f := 0; f < numFeatures; f++ {
					grad[c][f] += errTerm * x[f]
				}
			}
		}

		for c := 0; c < numClasses; c++ {
			for f := 0; f < numFeatures; f++ {
				g := grad[c][f]/n + l2*weights[c][f]
				weights[c][f] -= learningRate * g
			}
		}
	}

	return weights
}

func scoreAll(weights [][]float64, x []float64) []float64 {
	scores := make([]float64, len(weights))
	for c, w := range weights {
		s := 0.0
		for f, v := range x {
			s += w[f] * v
		}
		scores[c] = s
	}
	return scores
}

// softmax returns a calibrated class-probability distribution, which the
// Reasoning Engine reports verbatim as the ml_prediction step's confidence
// (§4.H "Confidence choice").
func softmax(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	exps := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		exps[i] = math.Exp(s - maxScore)
		sum += exps[i]
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}
