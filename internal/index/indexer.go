// Package index drives the indexing lifecycle: full indexing, explicit-path
// reindexing, and incremental sync with resumable progress.
package index

import (
	"context"
	"errors"

	"cinder/internal/chunker"
	"cinder/internal/extract"
	"cinder/internal/model"
	"cinder/internal/store"
)

// ErrSyncRunning is returned when an indexing pass is already in flight in
// this process. Passes never interleave writes; callers retry later.
var ErrSyncRunning = errors.New("an indexing pass is already running")

// Embedder is the embedding provider contract the indexer needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds indexer configuration.
type Config struct {
	Language string // language tag stamped on chunks (default "csharp")
}

// Indexer owns the parse → extract → chunk → embed → persist pipeline.
// The embedding client is injected at construction, never a shared global.
type Indexer struct {
	store     store.Store
	embedder  Embedder
	extractor *extract.Extractor
	chunks    *chunker.Builder
	lock      passLock
}

// New creates an Indexer over the given store and embedding client.
func New(st store.Store, emb Embedder, cfg Config) *Indexer {
	lang := cfg.Language
	if lang == "" {
		lang = "csharp"
	}
	return &Indexer{
		store:     st,
		embedder:  emb,
		extractor: extract.New(),
		chunks:    chunker.New(lang),
	}
}

// Progress returns the current or most recent pass snapshot; idle if no pass
// has ever run.
func (ix *Indexer) Progress() (*model.Progress, error) {
	p, err := ix.store.GetProgress()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &model.Progress{State: model.StateIdle}, nil
	}
	return p, nil
}
