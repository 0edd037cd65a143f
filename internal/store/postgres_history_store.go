package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunamismax/pixelshrink/internal/domain"
	_ "github.com/lib/pq"
)

const historySchemaSQL = `
CREATE TABLE IF NOT EXISTS conversions (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	source_format TEXT NOT NULL DEFAULT '',
	source_bytes BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	quality SMALLINT NOT NULL,
	save_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversions_created_at_idx ON conversions (created_at DESC);
`

type PostgresHistoryStore struct {
	db *sql.DB
}

func NewPostgresHistoryStore(ctx context.Context, dsn string) (*PostgresHistoryStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresHistoryStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresHistoryStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, historySchemaSQL); err != nil {
		return fmt.Errorf("ensure conversions schema: %w", err)
	}
	return nil
}

func (s *PostgresHistoryStore) Close() error {
	return s.db.Close()
}

func (s *PostgresHistoryStore) Record(ctx context.Context, c domain.Conversion) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversions (id, command, source_format, source_bytes, output_bytes, width, height, quality, save_path, status, error, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID,
		c.Command,
		c.SourceFormat,
		c.SourceBytes,
		c.OutputBytes,
		int64(c.Width),
		int64(c.Height),
		int64(c.Quality),
		c.SavePath,
		c.Status,
		c.Error,
		c.DurationMS,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

func (s *PostgresHistoryStore) Recent(ctx context.Context, limit int) ([]domain.Conversion, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, command, source_format, source_bytes, output_bytes, width, height, quality, save_path, status, error, duration_ms, created_at
		 FROM conversions
		 ORDER BY created_at DESC
		 LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	return scanConversions(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanConversions never returns a nil slice on success.
func scanConversions(rows rowScanner) ([]domain.Conversion, error) {
	out := make([]domain.Conversion, 0)
	for rows.Next() {
		var (
			c                      domain.Conversion
			width, height, quality int64
		)
		if err := rows.Scan(
			&c.ID,
			&c.Command,
			&c.SourceFormat,
			&c.SourceBytes,
			&c.OutputBytes,
			&width,
			&height,
			&quality,
			&c.SavePath,
			&c.Status,
			&c.Error,
			&c.DurationMS,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		c.Width = uint32(width)
		c.Height = uint32(height)
		c.Quality = uint8(quality)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return out, nil
}
