package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/eventbus"
	"turn-coordinator/internal/tasks"
)

// Options tunes the queue bus.
type Options struct {
	Queue       string
	Concurrency int
	MaxRetry    int
	Timeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Queue == "" {
		o.Queue = "default"
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.MaxRetry <= 0 {
		o.MaxRetry = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Minute
	}
	return o
}

// QueueBus carries bus channels over asynq tasks. Publishing enqueues a task;
// the embedded worker server hands each task to the matching subscribers.
// A handler error makes asynq retry the task, so delivery is at-least-once.
type QueueBus struct {
	client *asynq.Client
	server *asynq.Server
	opts   Options
	log    *logrus.Entry

	mu      sync.Mutex
	subs    []queueSub
	started bool
}

type queueSub struct {
	pattern string
	handler eventbus.Handler
}

var _ eventbus.Bus = (*QueueBus)(nil)

// NewQueueBus creates the asynq client and worker server on redisOpt.
func NewQueueBus(redisOpt asynq.RedisClientOpt, opts Options, logger *logrus.Logger) *QueueBus {
	opts = opts.withDefaults()
	logEntry := logger.WithField("component", "queue_bus")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues:      map[string]int{opts.Queue: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				taskID, _ := asynq.GetTaskID(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &QueueBus{
		client: asynq.NewClient(redisOpt),
		server: server,
		opts:   opts,
		log:    logEntry,
	}
}

func (b *QueueBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := eventbus.Encode(payload)
	if err != nil {
		return err
	}
	task, err := tasks.NewBusTask(channel, data,
		asynq.Queue(b.opts.Queue),
		asynq.MaxRetry(b.opts.MaxRetry),
		asynq.Timeout(b.opts.Timeout),
	)
	if err != nil {
		return err
	}
	info, err := b.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("asynq: enqueue %s: %w", task.Type(), err)
	}
	b.log.WithFields(logrus.Fields{"channel": channel, "task_id": info.ID}).Debug("Bus task enqueued")
	return nil
}

// Subscribe must be called before Start.
func (b *QueueBus) Subscribe(pattern string, h eventbus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return eventbus.ErrStarted
	}
	b.subs = append(b.subs, queueSub{pattern: pattern, handler: h})
	return nil
}

// Start runs the worker server in the background. Without subscribers this
// instance only publishes and no server is started.
func (b *QueueBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return eventbus.ErrStarted
	}
	b.started = true
	if len(b.subs) == 0 {
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeBusPrefix, b.ProcessTask)

	b.log.Info("Worker server starting...")
	if err := b.server.Start(mux); err != nil {
		return fmt.Errorf("asynq: start worker server: %w", err)
	}
	return nil
}

// ProcessTask implements asynq.Handler for bus tasks.
func (b *QueueBus) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	logCtx := b.log.WithFields(logrus.Fields{"task_id": taskID, "task_type": t.Type()})

	p, err := tasks.ParseBusTask(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	msg := eventbus.Message{Channel: p.Channel, Payload: p.Payload}
	var errs []error
	for _, s := range b.subs {
		if !eventbus.Matches(s.pattern, p.Channel) {
			continue
		}
		if err := s.handler(ctx, msg); err != nil {
			if errors.Is(err, eventbus.ErrMalformed) {
				logCtx.WithError(err).Warn("Dropping malformed bus message")
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *QueueBus) Stop() error {
	b.mu.Lock()
	started := b.started && len(b.subs) > 0
	b.mu.Unlock()

	if started {
		b.log.Info("Shutting down worker server...")
		b.server.Shutdown()
		b.log.Info("Worker server shut down complete.")
	}
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("asynq: close client: %w", err)
	}
	return nil
}
