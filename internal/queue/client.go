package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueConvert schedules a convert task. Pipeline failures are terminal, so
// tasks are never retried.
func (c *Client) EnqueueConvert(ctx context.Context, payload ConvertPayload) (*asynq.TaskInfo, error) {
	task, err := NewConvertImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(0),
		asynq.Timeout(3*time.Minute),
		asynq.Retention(24*time.Hour),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
