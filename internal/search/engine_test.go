package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinder/internal/model"
	"cinder/internal/search"
	"cinder/internal/store"
)

type stubBackend struct {
	lexHits   []store.LexicalHit
	lexErr    error
	vecHits   []store.VectorHit
	vecErr    error
	chunks    []model.Chunk
	textCalls int
}

func (b *stubBackend) SearchText(query string, limit int) ([]store.LexicalHit, error) {
	b.textCalls++
	return b.lexHits, b.lexErr
}

func (b *stubBackend) SearchVector(queryVec []float32, limit int) ([]store.VectorHit, error) {
	return b.vecHits, b.vecErr
}

func (b *stubBackend) GetChunksByIDs(ids []string) ([]model.Chunk, error) {
	return b.chunks, nil
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func TestHybridAlphaOutOfRange(t *testing.T) {
	eng := search.New(&stubBackend{}, &stubEmbedder{}, search.Options{})
	_, err := eng.Hybrid(context.Background(), "q", 5, -0.1)
	assert.Error(t, err)
	_, err = eng.Hybrid(context.Background(), "q", 5, 1.5)
	assert.Error(t, err)
}

func TestHybridBlendsBothSides(t *testing.T) {
	backend := &stubBackend{
		lexHits: []store.LexicalHit{{ID: "a", Rank: -2.0}, {ID: "b", Rank: -1.0}},
		vecHits: []store.VectorHit{{ID: "b", Similarity: 0.9}, {ID: "c", Similarity: 0.4}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	results, err := eng.Hybrid(context.Background(), "q", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	scores := make(map[string]float64)
	for _, r := range results {
		scores[r.ID] = r.Score
		assert.Equal(t, model.ModeHybrid, r.Mode)
	}
	// a: lexical only, 0.5*0 + 0.5*2.0
	assert.InDelta(t, 1.0, scores["a"], 1e-9)
	// b: both sides, 0.5*0.9 + 0.5*1.0
	assert.InDelta(t, 0.95, scores["b"], 1e-9)
	// c: vector only, 0.5*0.4 + 0.5*0
	assert.InDelta(t, 0.2, scores["c"], 1e-9)

	// Descending score order.
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, "c", results[2].ID)
}

func TestHybridAlphaBoundaries(t *testing.T) {
	backend := &stubBackend{
		lexHits: []store.LexicalHit{{ID: "lex", Rank: -3.0}},
		vecHits: []store.VectorHit{{ID: "vec", Similarity: 0.8}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	// alpha=0: pure lexical; the vector-only hit scores exactly 0.
	results, err := eng.Hybrid(context.Background(), "q", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "lex", results[0].ID)
	assert.InDelta(t, 3.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)

	// alpha=1: pure vector.
	results, err = eng.Hybrid(context.Background(), "q", 10, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vec", results[0].ID)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
}

func TestHybridTieBreaksOnID(t *testing.T) {
	backend := &stubBackend{
		vecHits: []store.VectorHit{{ID: "z", Similarity: 0.5}, {ID: "a", Similarity: 0.5}, {ID: "m", Similarity: 0.5}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	results, err := eng.Hybrid(context.Background(), "q", 10, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "m", results[1].ID)
	assert.Equal(t, "z", results[2].ID)
}

func TestHybridTruncatesToK(t *testing.T) {
	backend := &stubBackend{
		vecHits: []store.VectorHit{
			{ID: "a", Similarity: 0.9},
			{ID: "b", Similarity: 0.8},
			{ID: "c", Similarity: 0.7},
		},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	results, err := eng.Hybrid(context.Background(), "q", 2, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestHybridLexicalErrorNonFatal(t *testing.T) {
	backend := &stubBackend{
		lexErr:  errors.New(`fts5: syntax error near "("`),
		vecHits: []store.VectorHit{{ID: "v", Similarity: 0.7}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	results, err := eng.Hybrid(context.Background(), `weird("query`, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v", results[0].ID)
	assert.InDelta(t, 0.35, results[0].Score, 1e-9)
}

func TestHybridEmbedErrorFatal(t *testing.T) {
	backend := &stubBackend{
		lexHits: []store.LexicalHit{{ID: "a", Rank: -1}},
	}
	eng := search.New(backend, &stubEmbedder{err: errors.New("connection refused")}, search.Options{})

	_, err := eng.Hybrid(context.Background(), "q", 10, 0.5)
	assert.Error(t, err)
}

func TestHybridCacheHit(t *testing.T) {
	backend := &stubBackend{
		lexHits: []store.LexicalHit{{ID: "a", Rank: -1}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{CacheSize: 8, CacheTTL: time.Minute})

	first, err := eng.Hybrid(context.Background(), "q", 10, 0.5)
	require.NoError(t, err)
	second, err := eng.Hybrid(context.Background(), "q", 10, 0.5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.textCalls, "second call served from cache")

	// Different parameters miss the cache.
	_, err = eng.Hybrid(context.Background(), "q", 10, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.textCalls)
}

func TestLexicalScoresAreNegatedRank(t *testing.T) {
	backend := &stubBackend{
		lexHits: []store.LexicalHit{{ID: "a", Rank: -2.5}, {ID: "b", Rank: -1.0}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	results, err := eng.Lexical("q", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 2.5, results[0].Score, 1e-9)
	assert.Equal(t, model.ModeLexical, results[0].Mode)
}

func TestVectorScoresAreSimilarity(t *testing.T) {
	backend := &stubBackend{
		vecHits: []store.VectorHit{{ID: "a", Similarity: 0.77}},
	}
	eng := search.New(backend, &stubEmbedder{}, search.Options{})

	results, err := eng.Vector(context.Background(), "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.77, results[0].Score, 1e-9)
	assert.Equal(t, model.ModeVector, results[0].Mode)
}
