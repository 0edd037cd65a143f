//go:build govips && cgo

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (govipsTransformer) Transform(_ context.Context, input []byte, width, height, quality int) (Result, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	defer img.Close()

	if img.Width() <= 0 || img.Height() <= 0 {
		return Result{}, &DecodeError{Err: errors.New("image has no pixels")}
	}
	if err := checkEncodable(width, height); err != nil {
		return Result{}, err
	}

	srcFormat := vips.ImageTypes[img.Format()]

	if err := resizeExact(img, width, height); err != nil {
		return Result{}, err
	}

	params := vips.NewJpegExportParams()
	params.Quality = quality
	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return Result{}, &EncodeError{Err: err}
	}

	return Result{
		Data:         data,
		SourceFormat: srcFormat,
		SourceBytes:  len(input),
		Width:        img.Width(),
		Height:       img.Height(),
	}, nil
}

// resizeExact scales img to width x height. libvips rounds the output size
// from the shrink factor, so a one pixel miss gets a second corrective pass.
func resizeExact(img *vips.ImageRef, width, height int) error {
	for pass := 0; pass < 2; pass++ {
		if img.Width() == width && img.Height() == height {
			return nil
		}
		hscale := float64(width) / float64(img.Width())
		vscale := float64(height) / float64(img.Height())
		if err := img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
			return &EncodeError{Err: fmt.Errorf("resize image: %w", err)}
		}
	}
	if img.Width() != width || img.Height() != height {
		return &EncodeError{Err: fmt.Errorf("resize produced %dx%d, want %dx%d", img.Width(), img.Height(), width, height)}
	}
	return nil
}
