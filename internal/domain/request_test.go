package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageRequestValidate(t *testing.T) {
	valid := ImageRequest{ImageBlob: []byte{1}, Width: 10, Height: 20, Quality: 80}
	assert.NoError(t, valid.Validate())

	assert.Error(t, ImageRequest{Width: 10, Height: 20}.Validate())
	assert.Error(t, ImageRequest{ImageBlob: []byte{1}, Height: 20}.Validate())
	assert.Error(t, ImageRequest{ImageBlob: []byte{1}, Width: 10}.Validate())

	// quality is never validated here
	assert.NoError(t, ImageRequest{ImageBlob: []byte{1}, Width: 1, Height: 1, Quality: 0}.Validate())
}

func TestConvertRequestValidate(t *testing.T) {
	req := ConvertRequest{
		ImageRequest: ImageRequest{ImageBlob: []byte{1}, Width: 10, Height: 20, Quality: 80},
		SavePath:     "/tmp/out.jpg",
	}
	assert.NoError(t, req.Validate())

	req.SavePath = "   "
	assert.EqualError(t, req.Validate(), "save_path is required")
}

func TestEnqueueConvertRequestValidate(t *testing.T) {
	req := EnqueueConvertRequest{
		ConvertRequest: ConvertRequest{
			ImageRequest: ImageRequest{ImageBlob: []byte{1}, Width: 10, Height: 20},
			SavePath:     "/tmp/out.jpg",
		},
	}
	assert.NoError(t, req.Validate())

	req.WebhookURL = "https://example.com/hook"
	assert.NoError(t, req.Validate())

	req.WebhookURL = "ftp://example.com/hook"
	assert.Error(t, req.Validate())

	req.WebhookURL = "not a url"
	assert.Error(t, req.Validate())
}

func TestConvertRequestNamedParameters(t *testing.T) {
	body := `{"image_blob":"AQID","width":640,"height":480,"quality":85,"save_path":"/tmp/x.jpg"}`

	var req ConvertRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, []byte{1, 2, 3}, req.ImageBlob)
	assert.Equal(t, uint32(640), req.Width)
	assert.Equal(t, uint32(480), req.Height)
	assert.Equal(t, uint8(85), req.Quality)
	assert.Equal(t, "/tmp/x.jpg", req.SavePath)
}
