package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.text))
		})
	}

	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
	assert.NotEqual(t, ComputeHash("test"), ComputeHash("Test"))
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "test text"}))
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "test", Model: "custom-model"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr bool
	}{
		{name: "valid batch", req: BatchEmbeddingRequest{Texts: []string{"text1", "text2"}}},
		{name: "empty batch", req: BatchEmbeddingRequest{Texts: []string{}}, wantErr: true},
		{name: "contains empty text", req: BatchEmbeddingRequest{Texts: []string{"text1", "", "text3"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get and set", func(t *testing.T) {
		cache := NewCache(10)
		_, ok := cache.Get("missing")
		assert.False(t, ok)

		cache.Set("h1", &Embedding{Vector: []float32{1, 2}, Dimension: 2, Provider: ProviderLocal, Hash: "h1"})
		got, ok := cache.Get("h1")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, got.Vector)
		assert.Equal(t, ProviderLocal, got.Provider)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("copies on set and get", func(t *testing.T) {
		cache := NewCache(10)
		stored := &Embedding{Vector: []float32{1, 2, 3}}
		cache.Set("h", stored)
		stored.Vector[0] = 99

		got, ok := cache.Get("h")
		require.True(t, ok)
		assert.Equal(t, float32(1), got.Vector[0])

		got.Vector[1] = 42
		again, _ := cache.Get("h")
		assert.Equal(t, float32(2), again.Vector[1])
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Set("b", &Embedding{Vector: []float32{2}})
		cache.Set("c", &Embedding{Vector: []float32{3}})

		_, ok := cache.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})
}

// stubEmbedder returns a fixed vector or error
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Embedding{Vector: s.vector, Dimension: len(s.vector), Provider: "stub"}, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	out := &BatchEmbeddingResponse{Provider: "stub"}
	for range req.Texts {
		emb, err := s.GenerateEmbedding(ctx, EmbeddingRequest{})
		if err != nil {
			return nil, err
		}
		out.Embeddings = append(out.Embeddings, emb)
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int   { return len(s.vector) }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub-model" }
func (s *stubEmbedder) Close() error     { return nil }

func TestEmbed(t *testing.T) {
	v, err := Embed(context.Background(), &stubEmbedder{vector: []float32{0.5, 0.5}}, "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, v)

	boom := errors.New("boom")
	_, err = Embed(context.Background(), &stubEmbedder{err: boom}, "text")
	assert.ErrorIs(t, err, boom)
}
