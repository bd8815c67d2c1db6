package index

import (
	"context"
	"fmt"
	"os"

	"cinder/internal/chunker"
	"cinder/internal/model"
	"cinder/internal/walker"
)

// Sync statuses.
const (
	StatusUpToDate = "up_to_date"
	StatusIndexed  = "indexed"
)

// SyncSummary is the result of one smart sync pass.
type SyncSummary struct {
	Status       string `json:"status"`
	Root         string `json:"root"`
	TotalFiles   int    `json:"total_files"`
	UpdatedFiles int    `json:"updated_files"`
	DeletedFiles int    `json:"deleted_files"`
}

// Sync compares on-disk fingerprints against persisted state and reprocesses
// only new or changed files, purging records for files that vanished.
//
// A no-op pass returns up_to_date without ever entering the running state.
// Otherwise progress moves idle → running → idle, and every file commits
// fully before the next one starts, so an interrupted pass resumes on the
// next call without redoing completed work.
func (ix *Indexer) Sync(ctx context.Context, root string) (*SyncSummary, error) {
	if !ix.lock.tryAcquire() {
		return nil, ErrSyncRunning
	}
	defer ix.lock.release()

	states, err := ix.store.FileStates()
	if err != nil {
		return nil, fmt.Errorf("read file states: %w", err)
	}

	files, err := walker.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	onDisk := make(map[string]bool, len(files))
	var toIndex []walker.FileInfo
	for _, f := range files {
		onDisk[f.Path] = true
		current := model.Fingerprint{ModifiedNanos: f.ModifiedNanos, SizeBytes: f.SizeBytes}
		if prev, ok := states[f.Path]; !ok || prev != current {
			toIndex = append(toIndex, f)
		}
	}

	// Purge every tracked file that is gone from disk or fell outside this
	// root. Each file's records go as one unit.
	var deleted int
	for path := range states {
		if onDisk[path] {
			continue
		}
		if err := ix.store.DeleteFile(path); err != nil {
			return nil, fmt.Errorf("delete %s: %w", path, err)
		}
		deleted++
	}

	if len(toIndex) == 0 {
		return &SyncSummary{
			Status:       StatusUpToDate,
			Root:         root,
			TotalFiles:   len(files),
			UpdatedFiles: 0,
			DeletedFiles: deleted,
		}, nil
	}

	if err := ix.store.InitProgress(root, len(toIndex)); err != nil {
		return nil, fmt.Errorf("init progress: %w", err)
	}

	updated := 0
	for _, f := range toIndex {
		if _, err := ix.indexFile(ctx, f); err != nil {
			if isSkippable(err) {
				fmt.Fprintf(os.Stderr, "skip unreadable %s: %v\n", f.Path, err)
				continue
			}
			// Already-committed files keep their fingerprints; this
			// file's stays stale so the next sync retries it.
			return nil, fmt.Errorf("index %s: %w", f.Path, err)
		}
		if err := ix.store.IncrementProgress(1); err != nil {
			return nil, fmt.Errorf("increment progress: %w", err)
		}
		updated++
	}

	if err := ix.store.FinishProgress(); err != nil {
		return nil, fmt.Errorf("finish progress: %w", err)
	}

	return &SyncSummary{
		Status:       StatusIndexed,
		Root:         root,
		TotalFiles:   len(files),
		UpdatedFiles: updated,
		DeletedFiles: deleted,
	}, nil
}

func splitSource(src []byte) []string {
	return chunker.SplitLines(string(src))
}
