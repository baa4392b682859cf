package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "chunks.db") + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db, zap.NewNop())
	require.NoError(t, err)
	return store, db
}

func makeChunks(n int, vec func(i int) []float32) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ChunkIndex: i,
			ChunkText:  fmt.Sprintf("chunk %d", i),
			PageNumber: domain.IntPtr(i/2 + 1),
			Embedding:  vec(i),
		}
	}
	return chunks
}

func axis(i, dims int) []float32 {
	v := make([]float32, dims)
	v[i%dims] = 1
	return v
}

func TestReplaceAndList(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceChunks(ctx, "paper-a", makeChunks(4, func(i int) []float32 { return axis(i, 4) })))

	chunks, err := store.ListChunks(ctx, "paper-a")
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "paper-a", c.PaperID)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, axis(i, 4), c.Embedding)
		require.NotNil(t, c.PageNumber)
	}
}

func TestReplaceIsIdempotent(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chunks := makeChunks(6, func(i int) []float32 { return axis(i, 3) })

	require.NoError(t, store.ReplaceChunks(ctx, "p", chunks))
	first, err := store.ListChunks(ctx, "p")
	require.NoError(t, err)

	require.NoError(t, store.ReplaceChunks(ctx, "p", chunks))
	second, err := store.ListChunks(ctx, "p")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ChunkText, second[i].ChunkText)
		assert.Equal(t, first[i].ChunkIndex, second[i].ChunkIndex)
	}

	// the old generation is gone, not just hidden
	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM paper_chunks WHERE paper_id = 'p'`).Scan(&rows))
	assert.Equal(t, 6, rows)
}

func TestReplaceRejectsBrokenSets(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	gap := makeChunks(3, func(i int) []float32 { return axis(i, 3) })
	gap[2].ChunkIndex = 5
	assert.ErrorIs(t, store.ReplaceChunks(ctx, "p", gap), domain.ErrInvalidRequest)

	mixed := makeChunks(3, func(i int) []float32 { return axis(i, 3) })
	mixed[1].Embedding = []float32{1, 0}
	assert.ErrorIs(t, store.ReplaceChunks(ctx, "p", mixed), domain.ErrInvalidRequest)

	missing := makeChunks(2, func(i int) []float32 { return axis(i, 3) })
	missing[0].Embedding = nil
	assert.ErrorIs(t, store.ReplaceChunks(ctx, "p", missing), domain.ErrInvalidRequest)

	count, err := store.CountChunks(ctx, "p")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearchRanksAndLimits(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	vecs := [][]float32{
		{0, 1},     // orthogonal
		{1, 0},     // exact
		{0.9, 0.1}, // close
		{1, 0},     // exact, higher index
		{-1, 0},    // opposite
		{0.5, 0.5},
		{0.7, 0.3},
	}
	require.NoError(t, store.ReplaceChunks(ctx, "p", makeChunks(len(vecs), func(i int) []float32 { return vecs[i] })))

	results, err := store.Search(ctx, "p", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	indices := make([]int, len(results))
	for i, r := range results {
		indices[i] = r.ChunkIndex
	}
	assert.Equal(t, []int{1, 3, 2, 6, 5}, indices, "ties broken by chunk index")
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	results, err = store.Search(ctx, "p", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestSearchIsScopedToPaper(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	query := []float32{1, 0, 0}
	// paper B's chunks match the query exactly; paper A's barely do
	require.NoError(t, store.ReplaceChunks(ctx, "paper-b", makeChunks(5, func(int) []float32 { return query })))
	require.NoError(t, store.ReplaceChunks(ctx, "paper-a", makeChunks(3, func(int) []float32 { return []float32{0.1, 1, 0} })))

	results, err := store.Search(ctx, "paper-a", query, 5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "paper-a", r.PaperID)
	}

	results, err = store.Search(ctx, "unknown", query, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceChunks(ctx, "p", makeChunks(1, func(int) []float32 { return []float32{1, 0} })))

	_, err := store.Search(ctx, "p", []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = store.Search(ctx, "p", nil, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestDeleteChunks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceChunks(ctx, "a", makeChunks(3, func(i int) []float32 { return axis(i, 3) })))
	require.NoError(t, store.ReplaceChunks(ctx, "b", makeChunks(2, func(i int) []float32 { return axis(i, 3) })))
	require.NoError(t, store.DeleteChunks(ctx, "a"))

	count, err := store.CountChunks(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = store.CountChunks(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollectGarbageRemovesOrphanGenerations(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceChunks(ctx, "p", makeChunks(2, func(i int) []float32 { return axis(i, 2) })))

	// rows of a run that crashed before activation
	old := time.Now().Add(-2 * time.Hour).UnixMilli()
	for i := 0; i < 3; i++ {
		_, err := db.Exec(`INSERT INTO paper_chunks (id, paper_id, generation, chunk_index, chunk_text, embedding, dimensions, created_at)
			VALUES (?, 'p', 'crashed', ?, 'x', ?, 2, ?)`, fmt.Sprintf("orphan-%d", i), i, EncodeVector([]float32{1, 0}), old)
		require.NoError(t, err)
	}

	count, err := store.CountChunks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "orphans are invisible")

	removed, err := store.CollectGarbage(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed, "grace period protects recent rows")

	removed, err = store.CollectGarbage(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	count, err = store.CountChunks(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCosineAndCodec(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 1}, []float32{-1, -1}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))

	v := []float32{0.125, -3.5, 1e-7, 42}
	decoded, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
