package store

import (
	"context"

	"github.com/dunamismax/pixelshrink/internal/domain"
)

const DefaultHistoryLimit = 50

type HistoryStore interface {
	Record(ctx context.Context, conversion domain.Conversion) error
	// Recent returns up to limit conversions, newest first.
	Recent(ctx context.Context, limit int) ([]domain.Conversion, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
