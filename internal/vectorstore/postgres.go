package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// PostgresStore keeps chunks in a pgvector column and ranks them with the
// cosine distance operator.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and creates the chunk tables if needed
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger.Named("vectorstore")}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate chunk store: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS paper_chunks (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL,
			generation TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			page_number INTEGER,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_paper_chunks_generation ON paper_chunks (paper_id, generation, chunk_index)`,
		`CREATE TABLE IF NOT EXISTS chunk_generations (
			paper_id TEXT PRIMARY KEY,
			generation TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ReplaceChunks batch-inserts a new generation and then activates it
func (s *PostgresStore) ReplaceChunks(ctx context.Context, paperID string, chunks []domain.Chunk) error {
	prepared, err := prepareChunks(paperID, chunks)
	if err != nil {
		return err
	}

	generation := uuid.New().String()

	batch := &pgx.Batch{}
	for _, c := range prepared {
		batch.Queue(`
			INSERT INTO paper_chunks (id, paper_id, generation, chunk_index, chunk_text, page_number, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.PaperID, generation, c.ChunkIndex, c.ChunkText, c.PageNumber,
			pgvector.NewVector(c.Embedding), c.CreatedAt)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range prepared {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var previous string
		err := tx.QueryRow(ctx,
			`SELECT generation FROM chunk_generations WHERE paper_id = $1 FOR UPDATE`, paperID).Scan(&previous)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read active generation: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO chunk_generations (paper_id, generation, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (paper_id) DO UPDATE SET generation = EXCLUDED.generation, updated_at = NOW()
		`, paperID, generation); err != nil {
			return fmt.Errorf("failed to activate generation: %w", err)
		}

		if previous != "" && previous != generation {
			if _, err := tx.Exec(ctx,
				`DELETE FROM paper_chunks WHERE paper_id = $1 AND generation = $2`, paperID, previous); err != nil {
				return fmt.Errorf("failed to delete previous generation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if _, cleanupErr := s.pool.Exec(context.Background(),
			`DELETE FROM paper_chunks WHERE paper_id = $1 AND generation = $2`, paperID, generation); cleanupErr != nil {
			s.logger.Warn("Failed to remove unactivated generation",
				zap.String("paper_id", paperID), zap.Error(cleanupErr))
		}
		return err
	}

	return nil
}

// Search orders the active chunks by cosine distance
func (s *PostgresStore) Search(ctx context.Context, paperID string, query []float32, k int) ([]domain.ScoredChunk, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidRequest)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.chunk_index, c.chunk_text, c.page_number, c.created_at,
		       1 - (c.embedding <=> $2) AS score
		FROM paper_chunks c
		JOIN chunk_generations g ON g.paper_id = c.paper_id AND g.generation = c.generation
		WHERE c.paper_id = $1
		ORDER BY c.embedding <=> $2, c.chunk_index
		LIMIT $3
	`, paperID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var (
			sc   domain.ScoredChunk
			page *int32
		)
		if err := rows.Scan(&sc.ID, &sc.ChunkIndex, &sc.ChunkText, &page, &sc.CreatedAt, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		sc.PaperID = paperID
		if page != nil {
			sc.PageNumber = domain.IntPtr(int(*page))
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// equal distances come back in index order already; this keeps the
	// ordering identical to the SQLite backend
	return rankTopK(results, k), nil
}

// ListChunks returns the active chunks ordered by index
func (s *PostgresStore) ListChunks(ctx context.Context, paperID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.chunk_index, c.chunk_text, c.page_number, c.embedding, c.created_at
		FROM paper_chunks c
		JOIN chunk_generations g ON g.paper_id = c.paper_id AND g.generation = c.generation
		WHERE c.paper_id = $1
		ORDER BY c.chunk_index
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c    domain.Chunk
			page *int32
			vec  pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.ChunkIndex, &c.ChunkText, &page, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.PaperID = paperID
		if page != nil {
			c.PageNumber = domain.IntPtr(int(*page))
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of active chunks
func (s *PostgresStore) CountChunks(ctx context.Context, paperID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM paper_chunks c
		JOIN chunk_generations g ON g.paper_id = c.paper_id AND g.generation = c.generation
		WHERE c.paper_id = $1
	`, paperID).Scan(&count)
	return count, err
}

// DeleteChunks removes all chunks and the generation pointer of a paper
func (s *PostgresStore) DeleteChunks(ctx context.Context, paperID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM chunk_generations WHERE paper_id = $1`, paperID); err != nil {
			return fmt.Errorf("failed to delete generation pointer: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM paper_chunks WHERE paper_id = $1`, paperID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return nil
	})
}

// CollectGarbage deletes rows of inactive generations older than olderThan
func (s *PostgresStore) CollectGarbage(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM paper_chunks c
		WHERE c.created_at < $1
		AND NOT EXISTS (
			SELECT 1 FROM chunk_generations g
			WHERE g.paper_id = c.paper_id AND g.generation = c.generation
		)
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to collect garbage: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
