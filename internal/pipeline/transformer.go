package pipeline

import (
	"context"
	"fmt"
)

const (
	// maxJPEGDimension is the largest width or height a baseline JPEG frame can carry.
	maxJPEGDimension = 65535

	// maxOutputPixels bounds the resized raster, about 400 MB as 8-bit RGBA.
	maxOutputPixels = 100_000_000
)

// Transformer decodes input, resamples it to exactly width x height with a
// radius-3 Lanczos kernel and encodes the result as JPEG.
type Transformer interface {
	Transform(ctx context.Context, input []byte, width, height, quality int) (Result, error)
}

func checkEncodable(width, height int) error {
	if width > maxJPEGDimension || height > maxJPEGDimension {
		return &EncodeError{Err: fmt.Errorf("jpeg: %dx%d exceeds the %d pixel limit", width, height, maxJPEGDimension)}
	}
	if int64(width)*int64(height) > maxOutputPixels {
		return &EncodeError{Err: fmt.Errorf("%dx%d exceeds the %d pixel output limit", width, height, maxOutputPixels)}
	}
	return nil
}
