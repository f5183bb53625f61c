package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// SignImageTask asks a worker to issue a signed URL and publish it.
	SignImageTask = "image:sign"
)

// SignPayload is serialized into the task payload. It deliberately has no
// secret field; workers sign with their own configured secret.
type SignPayload struct {
	IssuanceID      string `json:"issuance_id"`
	ResourceID      string `json:"image_id"`
	ValiditySeconds *int64 `json:"expiry_seconds,omitempty"`
}

// Client enqueues sign jobs on asynq.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// Enqueue schedules a sign job.
func (c *Client) Enqueue(ctx context.Context, payload SignPayload) error {
	task, err := NewSignTask(payload)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.TaskID(payload.IssuanceID)); err != nil {
		return fmt.Errorf("enqueue sign task: %w", err)
	}
	return nil
}

// NewSignTask encodes payload as an asynq task.
func NewSignTask(payload SignPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(SignImageTask, data), nil
}

// DecodeSignTask reverses NewSignTask.
func DecodeSignTask(task *asynq.Task) (SignPayload, error) {
	var payload SignPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SignPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
