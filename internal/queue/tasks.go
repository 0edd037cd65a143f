package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeConvertImage = "image:convert"

// ConvertPayload is a deferred convert call. The image bytes travel inside
// the task, so nothing outside the queue has to hold them.
type ConvertPayload struct {
	JobID       string                `json:"job_id"`
	Request     domain.ConvertRequest `json:"request"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewConvertImageTask(payload ConvertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal convert payload: %w", err)
	}
	return asynq.NewTask(TypeConvertImage, body), nil
}

func ParseConvertPayload(task *asynq.Task) (ConvertPayload, error) {
	var payload ConvertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConvertPayload{}, fmt.Errorf("unmarshal convert payload: %w", err)
	}
	return payload, nil
}
