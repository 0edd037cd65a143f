package domain

import "time"

const (
	CommandPreview        = "preview"
	CommandConvert        = "convert"
	CommandEnqueueConvert = "enqueue_convert"

	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Conversion is one entry in the history of preview and convert calls.
type Conversion struct {
	ID           string    `json:"id"`
	Command      string    `json:"command"`
	SourceFormat string    `json:"source_format,omitempty"`
	SourceBytes  int64     `json:"source_bytes"`
	OutputBytes  int64     `json:"output_bytes"`
	Width        uint32    `json:"width"`
	Height       uint32    `json:"height"`
	Quality      uint8     `json:"quality"`
	SavePath     string    `json:"save_path,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
