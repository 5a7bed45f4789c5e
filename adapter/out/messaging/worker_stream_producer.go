// Package messaging provides the Redis Streams transport backing the
// Action Queue & Worker (§4.M) and the worker pool's job queue (§4.S).
package messaging

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
)

// Stream names, one per out.JobType (§4.M's narrowed three job families;
// the teacher's ~20-stream mapping is not carried forward — see DESIGN.md).
const (
	StreamProcessInbox  = "pipeline:process_inbox"
	StreamActionExecute = "action:execute"
	StreamSchedulerTick = "scheduler:tick"
)

func streamFor(jobType out.JobType) string {
	switch jobType {
	case out.JobProcessInbox:
		return StreamProcessInbox
	case out.JobActionExecute:
		return StreamActionExecute
	case out.JobSchedulerTick:
		return StreamSchedulerTick
	default:
		return string(jobType)
	}
}

// RedisProducer implements out.MessageProducer over Redis Streams, grounded
// on the teacher's worker_stream_producer.go XAdd helper.
type RedisProducer struct {
	client *redis.Client
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

var _ out.MessageProducer = (*RedisProducer)(nil)

func (p *RedisProducer) PublishProcessInbox(ctx context.Context, job *out.ProcessInboxJob) error {
	return p.publish(ctx, out.JobProcessInbox, job)
}

func (p *RedisProducer) PublishActionExecute(ctx context.Context, job *out.ActionExecuteJob) error {
	return p.publish(ctx, out.JobActionExecute, job)
}

func (p *RedisProducer) PublishSchedulerTick(ctx context.Context, job *out.SchedulerTickJob) error {
	return p.publish(ctx, out.JobSchedulerTick, job)
}

func (p *RedisProducer) publish(ctx context.Context, jobType out.JobType, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return apperr.InternalWithError(err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamFor(jobType),
		ID:     "*",
		Values: map[string]interface{}{
			"type": string(jobType),
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return apperr.DatabaseError("publish "+string(jobType), err)
	}
	return nil
}
