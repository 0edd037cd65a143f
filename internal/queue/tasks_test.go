package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertImageTaskCarriesRequest(t *testing.T) {
	payload := ConvertPayload{
		JobID: "job-123",
		Request: domain.ConvertRequest{
			ImageRequest: domain.ImageRequest{
				ImageBlob: []byte{0xff, 0xd8, 0xff},
				Width:     640,
				Height:    480,
				Quality:   90,
			},
			SavePath: "/tmp/out.jpg",
		},
		WebhookURL:  "https://example.com/hook",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewConvertImageTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeConvertImage, task.Type())

	parsed, err := ParseConvertPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload.JobID, parsed.JobID)
	assert.Equal(t, payload.Request.ImageBlob, parsed.Request.ImageBlob)
	assert.Equal(t, payload.Request.SavePath, parsed.Request.SavePath)
	assert.Equal(t, uint8(90), parsed.Request.Quality)
}
