// Package search fuses lexical (FTS5) and vector rankings into one ordered
// result set, and assembles retrieved chunks into model-ready context. It
// only ever reads from storage.
package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"cinder/internal/model"
	"cinder/internal/store"
)

// Embedder embeds a single query string.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Backend is the read-only storage surface the engine queries.
type Backend interface {
	SearchText(query string, limit int) ([]store.LexicalHit, error)
	SearchVector(queryVec []float32, limit int) ([]store.VectorHit, error)
	GetChunksByIDs(ids []string) ([]model.Chunk, error)
}

// Options tunes the optional hybrid query cache. A zero Options disables it.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

type cacheEntry struct {
	results   []model.SearchResult
	expiresAt time.Time
}

// Engine runs hybrid, lexical-only, and vector-only queries.
type Engine struct {
	backend  Backend
	embedder Embedder
	cache    *lru.Cache[[32]byte, cacheEntry]
	cacheTTL time.Duration
}

func New(backend Backend, embedder Embedder, opts Options) *Engine {
	e := &Engine{backend: backend, embedder: embedder, cacheTTL: opts.CacheTTL}
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		cache, err := lru.New[[32]byte, cacheEntry](opts.CacheSize)
		if err != nil {
			panic(fmt.Sprintf("create query cache: %v", err))
		}
		e.cache = cache
	}
	return e
}

// Hybrid blends the lexical and vector rankings with blend factor alpha in
// [0,1]: combined = alpha*vector + (1-alpha)*lexical, with a missing side
// contributing exactly 0. The two sub-queries run concurrently.
func (e *Engine) Hybrid(ctx context.Context, query string, k int, alpha float64) ([]model.SearchResult, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha %v out of range [0,1]", alpha)
	}

	key := cacheKey(query, k, alpha)
	if e.cache != nil {
		if entry, ok := e.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
			return entry.results, nil
		}
	}

	var lexHits []store.LexicalHit
	var vecHits []store.VectorHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.backend.SearchText(query, 2*k)
		if err != nil {
			// FTS match-syntax errors are non-fatal; the vector side
			// still answers.
			return nil
		}
		lexHits = hits
		return nil
	})
	g.Go(func() error {
		vec, err := e.embedder.EmbedOne(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		hits, err := e.backend.SearchVector(vec, 2*k)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		vecHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lexScores := make(map[string]float64, len(lexHits))
	for _, h := range lexHits {
		lexScores[h.ID] = -h.Rank // lower rank = better
	}
	vecScores := make(map[string]float64, len(vecHits))
	for _, h := range vecHits {
		vecScores[h.ID] = h.Similarity
	}

	combined := make([]model.SearchResult, 0, len(lexScores)+len(vecScores))
	for id := range lexScores {
		if _, both := vecScores[id]; !both {
			combined = append(combined, model.SearchResult{ID: id, Mode: model.ModeHybrid})
		}
	}
	for id := range vecScores {
		combined = append(combined, model.SearchResult{ID: id, Mode: model.ModeHybrid})
	}
	for i := range combined {
		id := combined[i].ID
		combined[i].Score = alpha*vecScores[id] + (1-alpha)*lexScores[id]
	}

	// Descending score; ascending id as a deterministic tie-break.
	sort.Slice(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		return combined[i].ID < combined[j].ID
	})
	if len(combined) > k {
		combined = combined[:k]
	}

	if e.cache != nil {
		e.cache.Add(key, cacheEntry{results: combined, expiresAt: time.Now().Add(e.cacheTTL)})
	}
	return combined, nil
}

// Lexical runs the full-text ranking alone, scored as -rank.
func (e *Engine) Lexical(query string, k int) ([]model.SearchResult, error) {
	hits, err := e.backend.SearchText(query, k)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	results := make([]model.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = model.SearchResult{ID: h.ID, Score: -h.Rank, Mode: model.ModeLexical}
	}
	return results, nil
}

// Vector runs the similarity ranking alone.
func (e *Engine) Vector(ctx context.Context, query string, k int) ([]model.SearchResult, error) {
	vec, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.backend.SearchVector(vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	results := make([]model.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = model.SearchResult{ID: h.ID, Score: h.Similarity, Mode: model.ModeVector}
	}
	return results, nil
}

// AssembleContext fetches the chunks for the given result ids (preserving
// order) and renders them into a prompt for a downstream chat model.
func (e *Engine) AssembleContext(query string, ids []string, template string) (string, []string, error) {
	chunks, err := e.backend.GetChunksByIDs(ids)
	if err != nil {
		return "", nil, fmt.Errorf("fetch chunks: %w", err)
	}
	return BuildContextPrompt(query, chunks, template), ids, nil
}

func cacheKey(query string, k int, alpha float64) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%v", query, k, alpha)))
}
