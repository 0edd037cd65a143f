package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ImageRequest carries the named parameters shared by every image command.
// ImageBlob travels as base64 inside JSON.
type ImageRequest struct {
	ImageBlob []byte `json:"image_blob"`
	Width     uint32 `json:"width"`
	Height    uint32 `json:"height"`
	Quality   uint8  `json:"quality"`
}

type PreviewRequest struct {
	ImageRequest
}

type ConvertRequest struct {
	ImageRequest
	SavePath string `json:"save_path"`
}

type EnqueueConvertRequest struct {
	ConvertRequest
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (r ImageRequest) Validate() error {
	if len(r.ImageBlob) == 0 {
		return errors.New("image_blob is required")
	}
	if r.Width == 0 {
		return errors.New("width must be greater than zero")
	}
	if r.Height == 0 {
		return errors.New("height must be greater than zero")
	}
	return nil
}

func (r ConvertRequest) Validate() error {
	if err := r.ImageRequest.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.SavePath) == "" {
		return errors.New("save_path is required")
	}
	return nil
}

func (r EnqueueConvertRequest) Validate() error {
	if err := r.ConvertRequest.Validate(); err != nil {
		return err
	}
	if r.WebhookURL == "" {
		return nil
	}
	u, err := url.Parse(r.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook_url must be an absolute http(s) URL: %s", r.WebhookURL)
	}
	return nil
}
