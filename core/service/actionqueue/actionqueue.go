// Package actionqueue implements the Action Queue & Worker (§4.M): durable
// enqueue of mail-provider side-effects and their execution with bounded
// retry.
//
// Grounded on adapter/in/worker/worker_pool.go's retry-backoff formula
// (time.Duration(1<<retries) * time.Second), which for retries 1,2,3
// produces exactly the 2s/4s/8s this module's spec calls for.
package actionqueue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/in"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
	"github.com/mailkeeper/agent/pkg/metrics"
)

const maxRetries = 3

var _ in.ActionQueueService = (*Queue)(nil)

type Queue struct {
	store    out.DocumentStore
	mail     out.MailProviderPort
	producer out.MessageProducer
	sleep    func(time.Duration)
}

func New(store out.DocumentStore, mail out.MailProviderPort, producer out.MessageProducer) *Queue {
	return &Queue{store: store, mail: mail, producer: producer, sleep: time.Sleep}
}

// Enqueue writes a new pending ActionRequest to the Persistence Gateway and
// mirrors it onto the Redis Stream transport so the worker pool can claim it
// without polling Mongo (§4.M "Concrete transport").
func (q *Queue) Enqueue(ctx context.Context, userID string, messageID *string, action domain.Action, params map[string]interface{}) (string, error) {
	request := &domain.ActionRequest{
		RequestID:   requestID(userID),
		UserID:      userID,
		MessageID:   messageID,
		Action:      action,
		Params:      params,
		Status:      domain.ActionRequestPending,
		RequestedAt: time.Now().UTC(),
	}

	if err := q.store.Set(ctx, out.CollectionActionRequests, request.RequestID, request); err != nil {
		return "", fmt.Errorf("actionqueue: persist request: %w", err)
	}

	if q.producer != nil {
		_ = q.producer.PublishActionExecute(ctx, &out.ActionExecuteJob{RequestID: request.RequestID})
	}

	return request.RequestID, nil
}

// ExecuteNext claims and executes up to one pending request.
func (q *Queue) ExecuteNext(ctx context.Context) (bool, error) {
	var claimed *domain.ActionRequest
	err := q.store.Where(ctx, out.CollectionActionRequests,
		out.Filter{"status": domain.ActionRequestPending},
		[]out.OrderBy{{Field: "requested_at", Descending: false}},
		1,
		func(raw []byte) error {
			var req domain.ActionRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return err
			}
			claimed = &req
			return nil
		},
	)
	if err != nil {
		return false, err
	}
	if claimed == nil {
		return false, nil
	}

	return true, q.execute(ctx, claimed)
}

// ExecuteByID claims and executes a specific request, used by the
// worker-pool job handler for a dequeued ActionExecuteJob.
func (q *Queue) ExecuteByID(ctx context.Context, requestID string) error {
	var req domain.ActionRequest
	if err := q.store.GetByID(ctx, out.CollectionActionRequests, requestID, &req); err != nil {
		return fmt.Errorf("actionqueue: load request %s: %w", requestID, err)
	}
	if req.Status != domain.ActionRequestPending {
		return nil
	}
	return q.execute(ctx, &req)
}

func (q *Queue) execute(ctx context.Context, req *domain.ActionRequest) error {
	start := time.Now()
	defer metrics.RecordLatency("actionqueue."+string(req.Action), time.Since(start))

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = q.runOnce(ctx, req)
		if err == nil {
			metrics.RecordActionOutcome(string(req.Action), true)
			return q.markCompleted(ctx, req)
		}
		if !apperr.Retryable(err) || attempt == maxRetries {
			metrics.RecordActionOutcome(string(req.Action), false)
			return q.markFailed(ctx, req, err)
		}
		q.sleep(time.Duration(1<<uint(attempt+1)) * time.Second)
	}
	metrics.RecordActionOutcome(string(req.Action), false)
	return q.markFailed(ctx, req, err)
}

func (q *Queue) runOnce(ctx context.Context, req *domain.ActionRequest) error {
	switch req.Action {
	case domain.ActionArchive:
		return q.runArchive(ctx, req)
	case domain.ActionSendDraft:
		return q.runSendDraft(ctx, req)
	case domain.ActionApplyLabel:
		return q.runApplyLabel(ctx, req)
	default:
		return apperr.BadRequest("unknown action: " + string(req.Action))
	}
}

func (q *Queue) runArchive(ctx context.Context, req *domain.ActionRequest) error {
	messageID, _ := req.Params["message_id"].(string)
	if messageID == "" && req.MessageID != nil {
		messageID = *req.MessageID
	}
	if err := q.mail.ModifyLabels(ctx, req.UserID, messageID, nil, []string{"INBOX"}); err != nil {
		return err
	}
	return q.store.PartialUpdate(ctx, out.CollectionMessages, req.UserID+":"+messageID, map[string]interface{}{
		"is_archived": true,
	})
}

func (q *Queue) runSendDraft(ctx context.Context, req *domain.ActionRequest) error {
	to, _ := req.Params["to"].(string)
	subject, _ := req.Params["subject"].(string)
	body, _ := req.Params["body"].(string)

	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body)
	encoded := base64.URLEncoding.EncodeToString([]byte(raw))
	return q.mail.Send(ctx, req.UserID, encoded)
}

func (q *Queue) runApplyLabel(ctx context.Context, req *domain.ActionRequest) error {
	messageID, _ := req.Params["message_id"].(string)
	rawLabels, _ := req.Params["labels"].([]interface{})

	existing, err := q.mail.ListLabels(ctx, req.UserID)
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(existing))
	for _, l := range existing {
		byName[l.Name] = l.ID
	}

	labelIDs := make([]string, 0, len(rawLabels))
	for _, raw := range rawLabels {
		name, _ := raw.(string)
		id, ok := byName[name]
		if !ok {
			created, err := q.mail.CreateLabel(ctx, req.UserID, name)
			if err != nil {
				return err
			}
			id = created.ID
		}
		labelIDs = append(labelIDs, id)
	}

	return q.mail.ModifyLabels(ctx, req.UserID, messageID, labelIDs, nil)
}

func (q *Queue) markCompleted(ctx context.Context, req *domain.ActionRequest) error {
	now := time.Now().UTC()
	return q.store.PartialUpdate(ctx, out.CollectionActionRequests, req.RequestID, map[string]interface{}{
		"status":       domain.ActionRequestCompleted,
		"processed_at": now,
	})
}

func (q *Queue) markFailed(ctx context.Context, req *domain.ActionRequest, cause error) error {
	now := time.Now().UTC()
	message := cause.Error()
	return q.store.PartialUpdate(ctx, out.CollectionActionRequests, req.RequestID, map[string]interface{}{
		"status":         domain.ActionRequestFailed,
		"result_message": message,
		"processed_at":   now,
	})
}

func requestID(userID string) string {
	return userID + ":" + time.Now().UTC().Format(time.RFC3339Nano)
}
