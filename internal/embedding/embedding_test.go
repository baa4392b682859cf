package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	inputs []string
	vec    []float32
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestTruncate(t *testing.T) {
	out, truncated := Truncate("short", 10)
	assert.Equal(t, "short", out)
	assert.False(t, truncated)

	out, truncated = Truncate(strings.Repeat("é", 20), 8)
	assert.True(t, truncated)
	assert.Equal(t, 8, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestClientTruncatesInput(t *testing.T) {
	p := &fakeProvider{vec: []float32{1, 0}}
	c := NewClient(p)

	_, err := c.Embed(context.Background(), strings.Repeat("a", 10000))
	require.NoError(t, err)
	require.Len(t, p.inputs, 1)
	assert.Len(t, p.inputs[0], DefaultMaxInputChars)
}

func TestClientFailures(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		c := NewClient(&fakeProvider{err: errors.New("502 bad gateway")})
		vec, err := c.Embed(context.Background(), "x")
		assert.Nil(t, vec)
		assert.ErrorIs(t, err, domain.ErrEmbedding)
	})

	t.Run("empty vector", func(t *testing.T) {
		c := NewClient(&fakeProvider{vec: []float32{}})
		_, err := c.Embed(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrEmbedding)
	})

	t.Run("cancelled while rate limited", func(t *testing.T) {
		c := NewClient(&fakeProvider{vec: []float32{1}}, WithRateLimit(0.001))
		_, err := c.Embed(context.Background(), "first")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.Embed(ctx, "second")
		assert.ErrorIs(t, err, domain.ErrEmbedding)
	})
}

func TestOpenAIProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))

		var body struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)

		w.Header().Set("Content-Type", "application/json")
		if body.Input == "fail" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	client := NewClient(NewOpenAIProvider(srv.URL, "test-key", "text-embedding-3-small", 0))

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)

	_, err = client.Embed(context.Background(), "fail")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Equal(t, int32(2), calls.Load(), "non-2xx must not be retried")
}
