package in

import "context"

// RetrainingService detects the feedback-delta threshold and refits the
// classifier (§4.O).
type RetrainingService interface {
	// MaybeRetrain checks the trigger and, if crossed, builds a training
	// set, fits, and publishes a new classifier artifact. Returns false
	// when the trigger was not met or the sample-size gate aborted it.
	MaybeRetrain(ctx context.Context) (retrained bool, err error)
}
