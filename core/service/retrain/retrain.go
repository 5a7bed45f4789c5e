// Package retrain implements the Retraining Controller (§4.O): it watches
// the feedback count, rebuilds training rows from feedback+message joins,
// fits a fresh classifier, and publishes the result through the Blob/Model
// Store.
//
// Grounded on the teacher's core/service/classification package structure.
// MaybeRetrain runs the fit synchronously in the caller's goroutine; no
// worker-pool job kind in this module calls it.
package retrain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/core/service/classifier"
	"github.com/mailkeeper/agent/core/service/feature"
	"github.com/mailkeeper/agent/core/service/realtime"
)

const (
	defaultTriggerFeedbackCount = 10
	minSamplesForTraining       = 5

	statePath              = "classifier/state.json"
	artifactPathFormat     = "classifier/v%d/pipeline.json"
	currentArtifactVersion = 1
)

type Controller struct {
	store             out.DocumentStore
	blobs             out.BlobStore
	classifierHandle  *classifier.Classifier
	broadcaster       *realtime.Broadcaster
	triggerCount      int
}

func New(store out.DocumentStore, blobs out.BlobStore, handle *classifier.Classifier, broadcaster *realtime.Broadcaster, triggerFeedbackCount int) *Controller {
	if triggerFeedbackCount <= 0 {
		triggerFeedbackCount = defaultTriggerFeedbackCount
	}
	return &Controller{store: store, blobs: blobs, classifierHandle: handle, broadcaster: broadcaster, triggerCount: triggerFeedbackCount}
}

var _ in.RetrainingService = (*Controller)(nil)

// MaybeRetrain implements §4.O's trigger/build/gate/fit/publish sequence.
func (c *Controller) MaybeRetrain(ctx context.Context) (bool, error) {
	state, err := c.loadState(ctx)
	if err != nil {
		return false, fmt.Errorf("retrain: load state: %w", err)
	}

	feedbackCount, err := c.store.Count(ctx, out.CollectionFeedback, out.Filter{})
	if err != nil {
		return false, fmt.Errorf("retrain: count feedback: %w", err)
	}

	if int(feedbackCount)-state.LastFeedbackCount < c.triggerCount {
		return false, nil
	}

	c.broadcaster.Emit(ctx, "", domain.EventMLTrainingStarted, domain.ActivityStatusStarted, "retrain", nil)

	rows, err := c.buildTrainingRows(ctx)
	if err != nil {
		c.broadcaster.Emit(ctx, "", domain.EventMLTrainingError, domain.ActivityStatusFailed, "retrain", map[string]interface{}{"error": err.Error()})
		return false, err
	}

	if len(rows) < minSamplesForTraining {
		return false, nil
	}

	artifact, err := classifier.Fit(rows)
	if err != nil {
		c.broadcaster.Emit(ctx, "", domain.EventMLTrainingError, domain.ActivityStatusFailed, "retrain", map[string]interface{}{"error": err.Error()})
		return false, fmt.Errorf("retrain: fit: %w", err)
	}
	artifact.Version = currentArtifactVersion

	if err := c.publish(ctx, artifact); err != nil {
		c.broadcaster.Emit(ctx, "", domain.EventMLTrainingError, domain.ActivityStatusFailed, "retrain", map[string]interface{}{"error": err.Error()})
		return false, fmt.Errorf("retrain: publish: %w", err)
	}

	now := time.Now().UTC()
	newState := domain.RetrainState{LastFeedbackCount: int(feedbackCount), LastUpdatedUTC: &now}
	if err := c.saveState(ctx, newState); err != nil {
		return false, fmt.Errorf("retrain: save state: %w", err)
	}

	c.classifierHandle.Load(artifact)
	c.broadcaster.Emit(ctx, "", domain.EventMLTrainingComplete, domain.ActivityStatusCompleted, "retrain", map[string]interface{}{
		"rows":    len(rows),
		"version": artifact.Version,
	})

	return true, nil
}

// buildTrainingRows joins the latest-per-message feedback with corrected
// priorities against their source messages, skipping rows whose message no
// longer exists (§4.O "Data build").
func (c *Controller) buildTrainingRows(ctx context.Context) ([]domain.TrainingRow, error) {
	latestByMessage := map[string]domain.Feedback{}

	err := c.store.Where(ctx, out.CollectionFeedback, out.Filter{},
		[]out.OrderBy{{Field: "created_at", Descending: true}}, 0,
		func(raw []byte) error {
			var fb domain.Feedback
			if err := json.Unmarshal(raw, &fb); err != nil {
				return err
			}
			if fb.CorrectedPriority == nil {
				return nil
			}
			if _, seen := latestByMessage[fb.MessageID]; !seen {
				latestByMessage[fb.MessageID] = fb
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.TrainingRow, 0, len(latestByMessage))
	for _, fb := range latestByMessage {
		var msg domain.Message
		if err := c.store.GetByID(ctx, out.CollectionMessages, fb.UserID+":"+fb.MessageID, &msg); err != nil {
			continue
		}

		purpose := ""
		if msg.Purpose != nil {
			purpose = string(*msg.Purpose)
		}
		urgency := 0
		if msg.Urgency != nil {
			urgency = *msg.Urgency
		}

		rows = append(rows, domain.TrainingRow{
			TextFeatures:      msg.Subject + " " + msg.BodyText,
			LLMPurpose:        purpose,
			SenderDomain:      feature.SenderDomain(msg.Sender.Address),
			LLMUrgency:        urgency,
			CorrectedPriority: *fb.CorrectedPriority,
		})
	}
	return rows, nil
}

func (c *Controller) publish(ctx context.Context, artifact *domain.ClassifierArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return c.blobs.PutBytes(ctx, fmt.Sprintf(artifactPathFormat, artifact.Version), data)
}

func (c *Controller) loadState(ctx context.Context) (domain.RetrainState, error) {
	data, err := c.blobs.GetBytes(ctx, statePath)
	if err != nil {
		return domain.RetrainState{}, nil
	}
	var state domain.RetrainState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.RetrainState{}, nil
	}
	return state, nil
}

func (c *Controller) saveState(ctx context.Context, state domain.RetrainState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.blobs.PutBytes(ctx, statePath, data)
}
