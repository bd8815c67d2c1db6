package index

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinder/internal/model"
	"cinder/internal/search"
	"cinder/internal/store"
)

const testDim = 4

// fakeEmbedder produces deterministic per-text vectors and can be told to
// fail from the Nth call on.
type fakeEmbedder struct {
	calls     int
	failAfter int // fail when calls > failAfter; 0 means never
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("embedding endpoint unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = textVec(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func textVec(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	x := h.Sum32()
	return []float32{
		float32(x%13) + 1,
		float32(x%7) + 1,
		float32(x%5) + 1,
		1,
	}
}

const alphaSrc = `class Alpha
{
    void Run()
    {
        Helper();
    }

    void Helper()
    {
    }
}
`

const betaSrc = `class Beta
{
}
`

func writeSource(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestIndexer(t *testing.T) (*Indexer, *store.SQLiteStore, *fakeEmbedder) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	emb := &fakeEmbedder{}
	return New(st, emb, Config{}), st, emb
}

func TestSyncIndexesNewFiles(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	root := t.TempDir()
	writeSource(t, root, "alpha.cs", alphaSrc)
	writeSource(t, root, "beta.cs", betaSrc)

	summary, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, summary.Status)
	assert.Equal(t, root, summary.Root)
	assert.Equal(t, 2, summary.TotalFiles)
	assert.Equal(t, 2, summary.UpdatedFiles)
	assert.Equal(t, 0, summary.DeletedFiles)

	hits, err := st.SearchText("Alpha", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	states, err := st.FileStates()
	require.NoError(t, err)
	assert.Len(t, states, 2)

	p, err := ix.Progress()
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, p.State)
	assert.Equal(t, 2, p.TotalFiles)
	assert.Equal(t, 2, p.ProcessedFiles)
	assert.NotNil(t, p.FinishedAt)
}

func TestSyncUpToDateIsNoOp(t *testing.T) {
	ix, _, emb := newTestIndexer(t)
	root := t.TempDir()
	writeSource(t, root, "alpha.cs", alphaSrc)

	_, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	before, err := ix.Progress()
	require.NoError(t, err)
	embedCalls := emb.calls

	summary, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, summary.Status)
	assert.Equal(t, 1, summary.TotalFiles)
	assert.Equal(t, 0, summary.UpdatedFiles)
	assert.Equal(t, emb.calls, embedCalls, "no file was re-embedded")

	// A no-op pass leaves the progress record untouched.
	after, err := ix.Progress()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSyncReindexesChangedFile(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	root := t.TempDir()
	writeSource(t, root, "alpha.cs", alphaSrc)
	betaPath := writeSource(t, root, "beta.cs", betaSrc)

	_, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)

	// Rewrite beta with different content; the size change alone flips
	// the fingerprint.
	require.NoError(t, os.WriteFile(betaPath, []byte("class BetaRenamed\n{\n}\n"), 0o644))

	summary, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, summary.Status)
	assert.Equal(t, 1, summary.UpdatedFiles)

	hits, err := st.SearchText("BetaRenamed", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	hits, err = st.SearchText("Beta NOT BetaRenamed", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "stale chunks for the old content are gone")
}

func TestSyncPurgesDeletedFile(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	root := t.TempDir()
	writeSource(t, root, "alpha.cs", alphaSrc)
	betaPath := writeSource(t, root, "beta.cs", betaSrc)

	_, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(betaPath))

	summary, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, summary.Status)
	assert.Equal(t, 1, summary.TotalFiles)
	assert.Equal(t, 1, summary.DeletedFiles)

	hits, err := st.SearchText("Beta", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	states, err := st.FileStates()
	require.NoError(t, err)
	assert.NotContains(t, states, betaPath)
}

func TestSyncResumesAfterEmbedFailure(t *testing.T) {
	ix, st, emb := newTestIndexer(t)
	root := t.TempDir()
	aPath := writeSource(t, root, "a.cs", alphaSrc)
	writeSource(t, root, "b.cs", betaSrc)

	// Files process in path order; the second file's embedding fails.
	emb.failAfter = 1
	_, err := ix.Sync(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.cs")

	// The first file committed fully before the failure.
	states, err := st.FileStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Contains(t, states, aPath)

	// The interrupted pass never reached FinishProgress.
	p, err := ix.Progress()
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, p.State)
	assert.Equal(t, 1, p.ProcessedFiles)

	// The next pass picks up only the failed file.
	emb.failAfter = 0
	summary, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UpdatedFiles)

	p, err = ix.Progress()
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, p.State)
	assert.Equal(t, 1, p.TotalFiles)
	assert.Equal(t, 1, p.ProcessedFiles)
}

func TestSyncRejectsConcurrentPass(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	require.True(t, ix.lock.tryAcquire())
	defer ix.lock.release()

	_, err := ix.Sync(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrSyncRunning)

	_, err = ix.IndexAll(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrSyncRunning)

	_, err = ix.ReindexPaths(context.Background(), []string{"/nowhere"})
	assert.ErrorIs(t, err, ErrSyncRunning)
}

func TestIndexAllIgnoresFingerprints(t *testing.T) {
	ix, _, emb := newTestIndexer(t)
	root := t.TempDir()
	writeSource(t, root, "alpha.cs", alphaSrc)
	writeSource(t, root, "beta.cs", betaSrc)

	_, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)
	embedCalls := emb.calls

	stats, err := ix.IndexAll(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesTotal)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
	assert.Greater(t, emb.calls, embedCalls, "every file was re-embedded")
}

func TestReindexPaths(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	root := t.TempDir()
	alphaPath := writeSource(t, root, "alpha.cs", alphaSrc)
	writeSource(t, root, "notes.txt", "not source")

	stats, err := ix.ReindexPaths(context.Background(), []string{alphaPath, filepath.Join(root, "notes.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	hits, err := st.SearchText("Alpha", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	// A directory argument expands to its source files.
	stats, err = ix.ReindexPaths(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
}

func TestIsSkippable(t *testing.T) {
	base := errors.New("permission denied")
	assert.True(t, isSkippable(errUnreadable{base}))
	assert.True(t, isSkippable(fmt.Errorf("read: %w", errUnreadable{base})))
	assert.False(t, isSkippable(base))
}

func TestSyncPersistsRelationsAndServesSearch(t *testing.T) {
	ix, st, emb := newTestIndexer(t)
	root := t.TempDir()
	alphaPath := writeSource(t, root, "alpha.cs", alphaSrc)

	_, err := ix.Sync(context.Background(), root)
	require.NoError(t, err)

	// The Run -> Helper call edge survives the round trip with its file
	// attribution.
	rels, err := st.ListRelations()
	require.NoError(t, err)
	var found bool
	for _, r := range rels {
		if r.Type == model.RelationCalls &&
			strings.HasSuffix(r.FromSymbolID, ":Run") &&
			strings.HasSuffix(r.ToSymbolID, ":Helper") {
			found = true
			assert.Equal(t, alphaPath, r.FilePath)
		}
	}
	assert.True(t, found, "calls edge not persisted: %v", rels)

	// Hybrid retrieval over the same store surfaces the indexed code.
	eng := search.New(st, emb, search.Options{})
	results, err := eng.Hybrid(context.Background(), "Helper", 5, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	chunks, err := st.GetChunksByIDs(ids)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var hasHelper bool
	for _, c := range chunks {
		if strings.Contains(c.Content, "Helper") {
			hasHelper = true
		}
	}
	assert.True(t, hasHelper)
}
