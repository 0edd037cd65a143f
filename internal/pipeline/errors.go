package pipeline

import "errors"

var ErrInvalidDimensions = errors.New("target width and height must be greater than zero")

// DecodeError reports input bytes that are not a recognized or valid image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "Failed to load image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a resized image that could not be serialized as JPEG.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "Failed to write image: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// WriteError reports a failure to persist encoded bytes at the destination.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "Failed to save image: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsUserFacing reports whether err is one of the pipeline's caller-visible
// failures, whose message is meant to be shown verbatim.
func IsUserFacing(err error) bool {
	var (
		decodeErr *DecodeError
		encodeErr *EncodeError
		writeErr  *WriteError
	)
	return errors.As(err, &decodeErr) ||
		errors.As(err, &encodeErr) ||
		errors.As(err, &writeErr) ||
		errors.Is(err, ErrInvalidDimensions)
}
