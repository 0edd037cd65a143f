package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type imagingTransformer struct{}

func (imagingTransformer) Transform(_ context.Context, input []byte, width, height, quality int) (Result, error) {
	src, srcFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	if src.Bounds().Empty() {
		return Result{}, &DecodeError{Err: errors.New("image has no pixels")}
	}
	if err := checkEncodable(width, height); err != nil {
		return Result{}, err
	}

	resized := imaging.Resize(src, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Result{}, &EncodeError{Err: err}
	}

	bounds := resized.Bounds()
	return Result{
		Data:         buf.Bytes(),
		SourceFormat: srcFormat,
		SourceBytes:  len(input),
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
	}, nil
}
