package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const ObjectStoreScheme = "s3://"

// Writer persists encoded bytes at a caller-supplied destination. Failures are
// returned as *WriteError.
type Writer interface {
	Write(ctx context.Context, path string, data []byte) error
}

// FileWriter creates the file at path or truncates and overwrites it.
// Symlinks are followed and an existing file keeps its permissions.
type FileWriter struct{}

func (FileWriter) Write(_ context.Context, path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return &WriteError{Path: path, Err: errors.New("save path is required")}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

type objectWriter interface {
	Bucket() string
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// ObjectStoreWriter uploads to paths of the form s3://<bucket>/<key>.
type ObjectStoreWriter struct {
	Storage objectWriter
}

func (w ObjectStoreWriter) Write(ctx context.Context, path string, data []byte) error {
	if w.Storage == nil {
		return &WriteError{Path: path, Err: errors.New("object storage is not configured")}
	}

	bucket, key, err := splitObjectPath(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if bucket != w.Storage.Bucket() {
		return &WriteError{Path: path, Err: fmt.Errorf("bucket %q is not configured", bucket)}
	}

	if err := w.Storage.WriteObject(ctx, key, data, "image/jpeg"); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func splitObjectPath(path string) (string, string, error) {
	trimmed := strings.TrimPrefix(path, ObjectStoreScheme)
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || strings.Trim(key, "/") == "" {
		return "", "", fmt.Errorf("expected path format %s<bucket>/<key>, got %s", ObjectStoreScheme, path)
	}
	return bucket, strings.TrimPrefix(key, "/"), nil
}

// Destinations routes a save path to the writer responsible for it.
type Destinations struct {
	Files   Writer
	Objects Writer
}

func (d Destinations) Write(ctx context.Context, path string, data []byte) error {
	if strings.HasPrefix(path, ObjectStoreScheme) {
		if d.Objects == nil {
			return &WriteError{Path: path, Err: errors.New("object storage is not configured")}
		}
		return d.Objects.Write(ctx, path, data)
	}

	files := d.Files
	if files == nil {
		files = FileWriter{}
	}
	return files.Write(ctx, path, data)
}
