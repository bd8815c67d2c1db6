package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cinder/internal/model"
	"cinder/internal/walker"
)

// Stats reports the result of a full or explicit-path index pass.
type Stats struct {
	FilesTotal   int
	FilesIndexed int
	FilesSkipped int
	ChunksTotal  int
}

// IndexAll reprocesses every source file under root, ignoring fingerprints.
// Files still commit one at a time, so an interrupted run leaves all
// completed files durable and a later Sync continues from there.
func (ix *Indexer) IndexAll(ctx context.Context, root string) (*Stats, error) {
	if !ix.lock.tryAcquire() {
		return nil, ErrSyncRunning
	}
	defer ix.lock.release()

	files, err := walker.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	return ix.processAll(ctx, files)
}

// ReindexPaths reprocesses the named files and directories, ignoring
// fingerprints. Non-source files are skipped.
func (ix *Indexer) ReindexPaths(ctx context.Context, paths []string) (*Stats, error) {
	if !ix.lock.tryAcquire() {
		return nil, ErrSyncRunning
	}
	defer ix.lock.release()

	var files []walker.FileInfo
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", p, err)
			continue
		}
		if info.IsDir() {
			found, err := walker.Discover(p)
			if err != nil {
				return nil, fmt.Errorf("discover files: %w", err)
			}
			files = append(files, found...)
			continue
		}
		if !walker.IsSourceFile(p) {
			continue
		}
		fi, err := walker.Stat(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", p, err)
			continue
		}
		files = append(files, fi)
	}
	return ix.processAll(ctx, files)
}

func (ix *Indexer) processAll(ctx context.Context, files []walker.FileInfo) (*Stats, error) {
	stats := &Stats{FilesTotal: len(files)}
	for _, f := range files {
		n, err := ix.indexFile(ctx, f)
		if err != nil {
			if isSkippable(err) {
				fmt.Fprintf(os.Stderr, "skip unreadable %s: %v\n", f.Path, err)
				stats.FilesSkipped++
				continue
			}
			return stats, fmt.Errorf("index %s: %w", f.Path, err)
		}
		stats.FilesIndexed++
		stats.ChunksTotal += n
	}
	return stats, nil
}

// errUnreadable marks an I/O failure reading one file: the file is skipped,
// its fingerprint is left untouched, and the pass continues.
type errUnreadable struct{ err error }

func (e errUnreadable) Error() string { return e.err.Error() }
func (e errUnreadable) Unwrap() error { return e.err }

func isSkippable(err error) bool {
	var u errUnreadable
	return errors.As(err, &u)
}

// indexFile runs the whole per-file pipeline and returns the chunk count.
//
// Commit order matters for resumability: chunk/FTS/relation rows first, then
// vectors, and the fingerprint only after everything else is durable. A
// failure anywhere leaves the fingerprint absent or stale so the next sync
// retries this file without touching already-committed ones.
func (ix *Indexer) indexFile(ctx context.Context, f walker.FileInfo) (int, error) {
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, errUnreadable{err}
	}

	parsed, err := ix.extractor.Parse(ctx, f.Path, src)
	if err != nil {
		return 0, err
	}

	lines := splitSource(src)
	chunks := ix.chunks.Build(f.Path, lines, parsed.Symbols, parsed.Relations)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("chunk count %d != embedding count %d", len(chunks), len(vectors))
	}

	if err := ix.store.ReplaceFileChunks(f.Path, chunks, parsed.Relations); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := ix.store.UpsertEmbeddings(ids, vectors); err != nil {
		return 0, fmt.Errorf("store embeddings: %w", err)
	}

	if err := ix.store.UpsertFileState(model.FileState{
		FilePath:      f.Path,
		ModifiedNanos: f.ModifiedNanos,
		SizeBytes:     f.SizeBytes,
		LastIndexedAt: time.Now(),
	}); err != nil {
		return 0, fmt.Errorf("store file state: %w", err)
	}

	return len(chunks), nil
}
