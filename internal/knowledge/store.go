// Package knowledge persists document chunks with vector search on
// PostgreSQL + pgvector.
//
// The store never generates embeddings itself; callers attach them to
// chunks before writing (see Embedder for the bridge to the provider).
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds a single vector search so a slow index scan cannot
// stall an interaction reply.
const searchTimeout = 10 * time.Second

// DB is the subset of pgxpool.Pool the store needs. Defined by the
// consumer so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store manages document chunks in the documents table.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const upsertChunkSQL = `
INSERT INTO documents (id, parent_id, channel_id, content, embedding, is_attachment, attachment_id, attachment_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	parent_id = EXCLUDED.parent_id,
	channel_id = EXCLUDED.channel_id,
	content = EXCLUDED.content,
	embedding = EXCLUDED.embedding,
	is_attachment = EXCLUDED.is_attachment,
	attachment_id = EXCLUDED.attachment_id,
	attachment_name = EXCLUDED.attachment_name`

// UpsertBatch writes all chunks in one batch round trip. Upsert-by-id
// keeps re-processing of the same source item from duplicating rows.
// An empty slice is a no-op.
func (s *Store) UpsertBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ch := range chunks {
		if ch.ID == "" || ch.ParentID == "" {
			return fmt.Errorf("chunk missing id or parent id: %+v", ch)
		}
		vec := pgvector.NewVector(ch.Embedding)
		batch.Queue(upsertChunkSQL,
			ch.ID, ch.ParentID, ch.ChannelID, ch.Content, vec,
			ch.IsAttachment, nullable(ch.AttachmentID), nullable(ch.AttachmentName))
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunk %q: %w", chunks[i].ID, err)
		}
	}

	s.logger.Debug("upserted document chunks",
		"parent_id", chunks[0].ParentID, "count", len(chunks))
	return nil
}

const searchSQL = `
SELECT id, parent_id, channel_id, content, is_attachment,
	COALESCE(attachment_id, ''), COALESCE(attachment_name, ''),
	1 - (embedding <=> $1) AS similarity
FROM documents
ORDER BY embedding <=> $1, id
LIMIT $2`

// SearchByVector returns the k nearest chunks to the query vector by
// cosine distance. Equal distances tie-break on chunk id so the ranking
// is reproducible across runs.
func (s *Store) SearchByVector(ctx context.Context, vec []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx, searchSQL, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.Chunk.ID, &r.Chunk.ParentID, &r.Chunk.ChannelID, &r.Chunk.Content,
			&r.Chunk.IsAttachment, &r.Chunk.AttachmentID, &r.Chunk.AttachmentName,
			&r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// DeleteByParent removes every chunk whose parent_id matches. It returns
// the number of rows removed; zero is a valid outcome, not an error.
func (s *Store) DeleteByParent(ctx context.Context, parentID string) (int64, error) {
	if parentID == "" {
		return 0, fmt.Errorf("parent id must not be empty")
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE parent_id = $1`, parentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for parent %q: %w", parentID, err)
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("deleted document chunks", "parent_id", parentID, "count", n)
		return n, nil
	}
	return 0, nil
}

// CountByParent returns the number of stored chunks for a parent id.
func (s *Store) CountByParent(ctx context.Context, parentID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE parent_id = $1`, parentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for parent %q: %w", parentID, err)
	}
	return count, nil
}

// nullable maps empty strings to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
