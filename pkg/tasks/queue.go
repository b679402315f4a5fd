package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/viewgraph/pkg/observability"
	"github.com/hibiken/asynq"
)

// Enqueuer is the part of the asynq client the queue manager uses
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// QueueManager sends embedding tasks to asynq
type QueueManager struct {
	client Enqueuer
	queue  string
	now    func() time.Time
}

// NewQueueManager creates a queue manager sending to queue
func NewQueueManager(redisOpt *asynq.RedisClientOpt, queue string) *QueueManager {
	return NewQueueManagerWithClient(asynq.NewClient(*redisOpt), queue)
}

// NewQueueManagerWithClient creates a queue manager on an existing client
func NewQueueManagerWithClient(client Enqueuer, queue string) *QueueManager {
	return &QueueManager{
		client: client,
		queue:  queue,
		now:    time.Now,
	}
}

// Queue returns the queue name tasks are sent to
func (q *QueueManager) Queue() string {
	return q.queue
}

// EnqueueEmbed schedules re-embedding of name. A task already pending for the
// same view absorbs the request.
func (q *QueueManager) EnqueueEmbed(ctx context.Context, name, trigger string, opts ...asynq.Option) error {
	payload := EmbedPayload{
		ViewName:   name,
		Trigger:    trigger,
		EnqueuedAt: q.now(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeViewEmbed, data)

	allOpts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(q.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	}
	allOpts = append(allOpts, opts...)

	_, err = q.client.EnqueueContext(ctx, task, allOpts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		observability.RecordTaskEnqueued(TypeViewEmbed, "deduplicated")

		return nil
	}

	if err != nil {
		observability.RecordError("tasks", "enqueue_error")

		return fmt.Errorf("failed to enqueue embedding of %s: %w", name, err)
	}

	observability.RecordTaskEnqueued(TypeViewEmbed, trigger)

	return nil
}

// Close closes the underlying client
func (q *QueueManager) Close() error {
	return q.client.Close()
}
