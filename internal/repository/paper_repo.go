package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/paperchat/internal/domain"
)

// PaperRepository handles paper persistence
type PaperRepository struct {
	db *DB
}

// NewPaperRepository creates a new paper repository
func NewPaperRepository(db *DB) *PaperRepository {
	return &PaperRepository{db: db}
}

const paperColumns = `id, user_id, title, filename, file_url, file_size, page_count, processed, status, error, metadata, created_at, updated_at`

// Create creates a new paper
func (r *PaperRepository) Create(ctx context.Context, paper *domain.Paper) error {
	if paper.ID == "" {
		paper.ID = uuid.New().String()
	}
	if paper.Status == "" {
		paper.Status = domain.PaperStatusUploaded
	}
	if paper.Metadata == nil {
		paper.Metadata = map[string]any{}
	}
	now := time.Now()
	paper.CreatedAt = now
	paper.UpdatedAt = now

	metadataJSON, err := json.Marshal(paper.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO papers (`+paperColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, paper.ID, paper.UserID, paper.Title, paper.Filename, paper.FileURL, paper.FileSize,
		nullInt(paper.PageCount), paper.Processed, paper.Status, paper.Error,
		string(metadataJSON), paper.CreatedAt, paper.UpdatedAt)

	return err
}

// Get retrieves a paper by ID
func (r *PaperRepository) Get(ctx context.Context, id string) (*domain.Paper, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = ?`, id)
	paper, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return paper, err
}

// ListByUser returns a user's papers, newest first
func (r *PaperRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Paper, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paperColumns+` FROM papers WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	papers := []*domain.Paper{}
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}

	return papers, rows.Err()
}

// SetStatus records an in-progress ingestion state and clears processed
func (r *PaperRepository) SetStatus(ctx context.Context, id, status string) error {
	return r.exec(ctx, `
		UPDATE papers SET status = ?, processed = 0, error = NULL, updated_at = ? WHERE id = ?
	`, status, time.Now(), id)
}

// MarkProcessed sets processed, page_count and the merged metadata. Keys
// already on the paper that are absent from metadata are kept. A non-empty
// title replaces the paper's title.
func (r *PaperRepository) MarkProcessed(ctx context.Context, id string, pageCount int, metadata map[string]any, title string) (*domain.Paper, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	paper, err := scanPaper(tx.QueryRowContext(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	merged := MergeMetadata(paper.Metadata, metadata)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if title != "" {
		paper.Title = title
	}
	paper.Metadata = merged
	paper.PageCount = domain.IntPtr(pageCount)
	paper.Processed = true
	paper.Status = domain.PaperStatusProcessed
	paper.Error = ""
	paper.UpdatedAt = time.Now()

	if _, err := tx.ExecContext(ctx, `
		UPDATE papers
		SET processed = 1, status = ?, error = NULL, page_count = ?, metadata = ?, title = ?, updated_at = ?
		WHERE id = ?
	`, paper.Status, pageCount, string(mergedJSON), paper.Title, paper.UpdatedAt, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return paper, nil
}

// MarkFailed records a failed ingestion; the paper reads as unprocessed
func (r *PaperRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.exec(ctx, `
		UPDATE papers SET processed = 0, status = ?, error = ?, updated_at = ? WHERE id = ?
	`, domain.PaperStatusFailed, message, time.Now(), id)
}

// Delete deletes a paper; conversations and messages cascade
func (r *PaperRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM papers WHERE id = ?`, id)
}

func (r *PaperRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MergeMetadata returns base overlaid with update
func MergeMetadata(base, update map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

func scanPaper(row rowScanner) (*domain.Paper, error) {
	paper := &domain.Paper{}
	var (
		pageCount    sql.NullInt64
		errText      sql.NullString
		metadataJSON sql.NullString
	)

	if err := row.Scan(&paper.ID, &paper.UserID, &paper.Title, &paper.Filename, &paper.FileURL,
		&paper.FileSize, &pageCount, &paper.Processed, &paper.Status, &errText, &metadataJSON,
		&paper.CreatedAt, &paper.UpdatedAt); err != nil {
		return nil, err
	}

	if pageCount.Valid {
		paper.PageCount = domain.IntPtr(int(pageCount.Int64))
	}
	paper.Error = errText.String
	paper.Metadata = map[string]any{}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &paper.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for paper %s: %w", paper.ID, err)
		}
	}

	return paper, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
