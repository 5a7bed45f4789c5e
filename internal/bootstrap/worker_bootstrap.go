package bootstrap

import (
	"context"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mailkeeper/agent/adapter/in/worker"
	"github.com/mailkeeper/agent/config"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/metrics"
)

// Worker runs the pool that executes the three job families (§4.S):
// pipeline runs, action-request execution, and scheduler ticks. It drains
// the Redis Stream consumer and feeds the pool; nothing else talks to
// core/service directly from this process.
type Worker struct {
	pool     *worker.Pool
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
	schedule *schedulerTicker
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	handler := worker.NewHandler(deps.Pipeline, deps.ActionQueue, deps.Scheduler)

	defaultConfig := worker.DefaultPoolConfig()
	poolConfig := &worker.PoolConfig{
		MinWorkers:         cfg.WorkerMin,
		MaxWorkers:         cfg.WorkerMax,
		QueueSize:          cfg.WorkerQueueSize,
		ScaleUpThreshold:   defaultConfig.ScaleUpThreshold,
		ScaleDownThreshold: defaultConfig.ScaleDownThreshold,
		ScaleInterval:      cfg.WorkerScaleInterval,
		IdleTimeout:        cfg.WorkerIdleTimeout,
		JobTimeout:         defaultConfig.JobTimeout,
		JobTimeoutByType:   defaultConfig.JobTimeoutByType,
		BatchSize:          defaultConfig.BatchSize,
		WorkerChanSize:     defaultConfig.WorkerChanSize,
	}
	if poolConfig.MinWorkers == 0 {
		poolConfig.MinWorkers = defaultConfig.MinWorkers
	}
	if poolConfig.MaxWorkers == 0 {
		poolConfig.MaxWorkers = defaultConfig.MaxWorkers
	}
	if poolConfig.QueueSize == 0 {
		poolConfig.QueueSize = defaultConfig.QueueSize
	}
	if poolConfig.ScaleInterval == 0 {
		poolConfig.ScaleInterval = defaultConfig.ScaleInterval
	}
	if poolConfig.IdleTimeout == 0 {
		poolConfig.IdleTimeout = defaultConfig.IdleTimeout
	}

	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if cfg.SchedulerEnabled {
		w.schedule = newSchedulerTicker(deps.Producer, deps.DocumentStore, cfg.SchedulerIntervalMin, zlog)
	}

	metrics.RegisterPool("worker", func() metrics.PoolSnapshot {
		m := w.pool.GetMetrics()
		return metrics.PoolSnapshot{
			CurrentWorkers: m.CurrentWorkers,
			MaxWorkers:     int32(poolConfig.MaxWorkers),
			QueueSize:      m.QueueSize,
			QueueCapacity:  int32(poolConfig.QueueSize),
			JobsProcessed:  m.JobsProcessed,
			JobsFailed:     m.JobsFailed,
			JobsDropped:    m.JobsDropped,
			JobsRetried:    m.JobsRetried,
		}
	})

	return w, cleanup, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pool.Start()
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.consumeStream()
	}()

	if w.schedule != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.schedule.run(w.ctx)
		}()
	}

	<-w.ctx.Done()
}

// consumeStream drains the Redis Stream consumer (§4.M) and submits each
// message to the pool. It acks on successful submission: idempotent
// document-store writes (messageDocID keying) make resubmission safe, so
// the pool's own retry/DLQ bookkeeping — not stream redelivery — is what
// covers job failures (§7).
func (w *Worker) consumeStream() {
	msgs, err := w.deps.Consumer.Consume(w.ctx)
	if err != nil {
		w.zlog.Error().Err(err).Msg("failed to start stream consumer")
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case qm, ok := <-msgs:
			if !ok {
				return
			}

			var payload map[string]any
			if err := json.Unmarshal(qm.Payload, &payload); err != nil {
				w.zlog.Error().Err(err).Msg("dropping malformed stream payload")
				_ = qm.Ack(w.ctx)
				continue
			}

			jobMsg := worker.NewMessage(string(qm.JobType), payload)
			if qm.JobType == out.JobActionExecute || qm.JobType == out.JobSchedulerTick {
				jobMsg.Priority = worker.PriorityHigh
			}

			submitted := w.pool.Submit(jobMsg)
			if !submitted {
				w.zlog.Warn().Str("job_type", string(qm.JobType)).Msg("pool rejected job, leaving unacked for redelivery")
				_ = qm.Nack(w.ctx)
				continue
			}
			_ = qm.Ack(w.ctx)

			if w.schedule != nil && qm.JobType == out.JobSchedulerTick {
				userID, _ := payload["user_id"].(string)
				task, _ := payload["task"].(string)
				w.schedule.clear(userID, task)
			}
		}
	}
}

func (w *Worker) Stop() {
	w.cancel()
	if w.schedule != nil {
		w.schedule.stop()
	}
	_ = w.deps.Consumer.Close(context.Background())
	w.pool.Stop()
	w.wg.Wait()
}

func (w *Worker) Submit(msg *worker.Message) bool {
	if msg.IsPriority() {
		return w.pool.SubmitPriority(msg)
	}
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
