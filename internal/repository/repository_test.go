package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "paperchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPaperLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewPaperRepository(newTestDB(t))

	paper := &domain.Paper{
		UserID:   "user-1",
		Title:    "upload.pdf",
		Filename: "upload.pdf",
		FileURL:  "/tmp/upload.pdf",
		Metadata: map[string]any{"doi": "10.1/abc", "title": "user supplied"},
	}
	require.NoError(t, repo.Create(ctx, paper))
	require.NotEmpty(t, paper.ID)

	got, err := repo.Get(ctx, paper.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Processed)
	assert.Nil(t, got.PageCount)
	assert.Equal(t, domain.PaperStatusUploaded, got.Status)

	require.NoError(t, repo.SetStatus(ctx, paper.ID, domain.PaperStatusEmbedding))
	got, _ = repo.Get(ctx, paper.ID)
	assert.Equal(t, domain.PaperStatusEmbedding, got.Status)

	updated, err := repo.MarkProcessed(ctx, paper.ID, 3,
		map[string]any{"title": "Extracted Title", "abstract": "We study things."}, "Extracted Title")
	require.NoError(t, err)
	assert.True(t, updated.Processed)

	got, _ = repo.Get(ctx, paper.ID)
	assert.True(t, got.Processed)
	require.NotNil(t, got.PageCount)
	assert.Equal(t, 3, *got.PageCount)
	assert.Equal(t, "Extracted Title", got.Title)
	assert.Equal(t, "10.1/abc", got.Metadata["doi"], "existing keys survive the merge")
	assert.Equal(t, "Extracted Title", got.Metadata["title"])
	assert.Equal(t, "We study things.", got.Metadata["abstract"])

	require.NoError(t, repo.MarkFailed(ctx, paper.ID, "embedding failed"))
	got, _ = repo.Get(ctx, paper.ID)
	assert.False(t, got.Processed)
	assert.Equal(t, domain.PaperStatusFailed, got.Status)
	assert.Equal(t, "embedding failed", got.Error)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = repo.ListByUser(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPaperNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewPaperRepository(newTestDB(t))

	got, err := repo.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.SetStatus(ctx, "missing", domain.PaperStatusExtracting), domain.ErrNotFound)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", "x"), domain.ErrNotFound)
	_, err = repo.MarkProcessed(ctx, "missing", 1, nil, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationsAndMessages(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	papers := NewPaperRepository(db)
	convs := NewConversationRepository(db)

	paper := &domain.Paper{UserID: "u", Title: "t", Filename: "f.pdf", FileURL: "f.pdf"}
	require.NoError(t, papers.Create(ctx, paper))

	latest, err := convs.Latest(ctx, paper.ID, "u")
	require.NoError(t, err)
	assert.Nil(t, latest)

	conv := &domain.Conversation{PaperID: paper.ID, UserID: "u"}
	require.NoError(t, convs.Create(ctx, conv))

	require.NoError(t, convs.CreateMessage(ctx, &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: "What is the method?"}))
	require.NoError(t, convs.CreateMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        "See page 2.",
		ChunksUsed:     []string{"chunk-a", "chunk-b"},
	}))

	latest, err = convs.Latest(ctx, paper.ID, "u")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, conv.ID, latest.ID)

	msgs, err := convs.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Empty(t, msgs[0].ChunksUsed)
	assert.Equal(t, []string{"chunk-a", "chunk-b"}, msgs[1].ChunksUsed)

	// deleting the paper cascades
	require.NoError(t, papers.Delete(ctx, paper.ID))
	got, err := convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	msgs, err = convs.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMergeMetadata(t *testing.T) {
	base := map[string]any{"a": 1, "title": "old"}
	merged := MergeMetadata(base, map[string]any{"title": "new", "abstract": "x"})

	assert.Equal(t, map[string]any{"a": 1, "title": "new", "abstract": "x"}, merged)
	assert.Equal(t, "old", base["title"], "inputs are not mutated")
	assert.Empty(t, MergeMetadata(nil, nil))
}
