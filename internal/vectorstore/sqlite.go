package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/paperchat/internal/domain"
	"go.uber.org/zap"
)

// SQLiteStore keeps vectors as float32 blobs and ranks them in process.
// A paper holds at most a few hundred chunks, so a scan per query is cheap.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates the chunk tables on db if needed
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if err := migrateSQLite(db); err != nil {
		return nil, fmt.Errorf("failed to migrate chunk store: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger.Named("vectorstore")}, nil
}

func migrateSQLite(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS paper_chunks (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL,
			generation TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			page_number INTEGER,
			embedding BLOB NOT NULL,
			dimensions INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_paper_chunks_generation ON paper_chunks(paper_id, generation, chunk_index)`,
		`CREATE TABLE IF NOT EXISTS chunk_generations (
			paper_id TEXT PRIMARY KEY,
			generation TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ReplaceChunks writes chunks under a new generation and then activates it
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, paperID string, chunks []domain.Chunk) error {
	prepared, err := prepareChunks(paperID, chunks)
	if err != nil {
		return err
	}

	generation := uuid.New().String()
	if err := s.insertGeneration(ctx, generation, prepared); err != nil {
		return err
	}

	if err := s.activate(ctx, paperID, generation); err != nil {
		// the rows are unreachable; remove them now instead of waiting for GC
		if _, cleanupErr := s.db.ExecContext(context.Background(),
			`DELETE FROM paper_chunks WHERE paper_id = ? AND generation = ?`, paperID, generation); cleanupErr != nil {
			s.logger.Warn("Failed to remove unactivated generation",
				zap.String("paper_id", paperID), zap.Error(cleanupErr))
		}
		return err
	}

	s.logger.Debug("Replaced chunks",
		zap.String("paper_id", paperID),
		zap.String("generation", generation),
		zap.Int("count", len(prepared)),
	)
	return nil
}

func (s *SQLiteStore) insertGeneration(ctx context.Context, generation string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO paper_chunks (id, paper_id, generation, chunk_index, chunk_text, page_number, embedding, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var page sql.NullInt64
		if c.PageNumber != nil {
			page = sql.NullInt64{Int64: int64(*c.PageNumber), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.PaperID, generation, c.ChunkIndex, c.ChunkText,
			page, EncodeVector(c.Embedding), len(c.Embedding), c.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) activate(ctx context.Context, paperID, generation string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activation: %w", err)
	}
	defer tx.Rollback()

	var previous sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT generation FROM chunk_generations WHERE paper_id = ?`, paperID).Scan(&previous)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read active generation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunk_generations (paper_id, generation, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET generation = excluded.generation, updated_at = excluded.updated_at
	`, paperID, generation, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to activate generation: %w", err)
	}

	if previous.Valid && previous.String != generation {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM paper_chunks WHERE paper_id = ? AND generation = ?`, paperID, previous.String); err != nil {
			return fmt.Errorf("failed to delete previous generation: %w", err)
		}
	}

	return tx.Commit()
}

// Search ranks the paper's active chunks by cosine similarity to query
func (s *SQLiteStore) Search(ctx context.Context, paperID string, query []float32, k int) ([]domain.ScoredChunk, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidRequest)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chunk_index, c.chunk_text, c.page_number, c.embedding, c.created_at
		FROM paper_chunks c
		JOIN chunk_generations g ON g.paper_id = c.paper_id AND g.generation = c.generation
		WHERE c.paper_id = ?
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var scored []domain.ScoredChunk
	for rows.Next() {
		c, blob, err := scanChunk(rows, paperID)
		if err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if len(vec) != len(query) {
			return nil, fmt.Errorf("%w: query dimension %d does not match stored dimension %d",
				domain.ErrInvalidRequest, len(query), len(vec))
		}
		scored = append(scored, domain.ScoredChunk{Chunk: c, Score: Cosine(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankTopK(scored, k), nil
}

// ListChunks returns the active chunks ordered by index
func (s *SQLiteStore) ListChunks(ctx context.Context, paperID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chunk_index, c.chunk_text, c.page_number, c.embedding, c.created_at
		FROM paper_chunks c
		JOIN chunk_generations g ON g.paper_id = c.paper_id AND g.generation = c.generation
		WHERE c.paper_id = ?
		ORDER BY c.chunk_index ASC
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, blob, err := scanChunk(rows, paperID)
		if err != nil {
			return nil, err
		}
		if c.Embedding, err = DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of active chunks
func (s *SQLiteStore) CountChunks(ctx context.Context, paperID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM paper_chunks c
		JOIN chunk_generations g ON g.paper_id = c.paper_id AND g.generation = c.generation
		WHERE c.paper_id = ?
	`, paperID).Scan(&count)
	return count, err
}

// DeleteChunks removes all chunks and the generation pointer of a paper
func (s *SQLiteStore) DeleteChunks(ctx context.Context, paperID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_generations WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("failed to delete generation pointer: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM paper_chunks WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return tx.Commit()
}

// CollectGarbage deletes rows of inactive generations created before now-olderThan
func (s *SQLiteStore) CollectGarbage(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM paper_chunks
		WHERE created_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM chunk_generations g
			WHERE g.paper_id = paper_chunks.paper_id AND g.generation = paper_chunks.generation
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to collect garbage: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the database handle belongs to the caller
func (s *SQLiteStore) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner, paperID string) (domain.Chunk, []byte, error) {
	var (
		c         domain.Chunk
		page      sql.NullInt64
		blob      []byte
		createdMs int64
	)
	if err := row.Scan(&c.ID, &c.ChunkIndex, &c.ChunkText, &page, &blob, &createdMs); err != nil {
		return c, nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.PaperID = paperID
	if page.Valid {
		c.PageNumber = domain.IntPtr(int(page.Int64))
	}
	c.CreatedAt = time.UnixMilli(createdMs).UTC()
	return c, blob, nil
}
