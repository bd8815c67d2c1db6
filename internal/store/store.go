// Package store persists chunks, embeddings, relations, file fingerprints,
// and sync progress in a single SQLite database: FTS5 for the lexical index
// and sqlite-vec for the vector index.
package store

import (
	"database/sql"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"cinder/internal/model"
)

func init() {
	sqlite_vec.Auto()
}

// Store is the persistence boundary consumed by the sync and fusion engines.
type Store interface {
	// ReplaceFileChunks atomically replaces all chunk, FTS, and relation
	// rows for one file path. Stale vector rows for the path's previous
	// chunks are removed in the same transaction.
	ReplaceFileChunks(filePath string, chunks []model.Chunk, relations []model.Relation) error
	// UpsertEmbeddings writes vectors keyed by chunk id with
	// delete-then-insert semantics.
	UpsertEmbeddings(chunkIDs []string, vectors [][]float32) error
	// DeleteFile purges every record for a file path as one unit.
	DeleteFile(filePath string) error

	// SearchText runs a ranked FTS5 match, ascending by rank.
	SearchText(query string, limit int) ([]LexicalHit, error)
	// SearchVector runs a nearest-neighbor query, descending by similarity.
	SearchVector(queryVec []float32, limit int) ([]VectorHit, error)
	// GetChunksByIDs fetches chunks preserving the input id order; unknown
	// ids are skipped.
	GetChunksByIDs(ids []string) ([]model.Chunk, error)
	// ListRelations returns every persisted relation row.
	ListRelations() ([]RelationRow, error)

	// FileStates returns the fingerprint for every tracked file.
	FileStates() (map[string]model.Fingerprint, error)
	// UpsertFileState overwrites a file's fingerprint row.
	UpsertFileState(state model.FileState) error

	InitProgress(root string, totalFiles int) error
	IncrementProgress(delta int) error
	FinishProgress() error
	// GetProgress returns the singleton progress row, or nil if no pass has
	// ever run.
	GetProgress() (*model.Progress, error)

	Close() error
}

// SQLiteStore implements Store backed by SQLite + FTS5 + sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the database at dbPath and initializes the schema
// with the given embedding dimension.
func Open(dbPath string, dim int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Init(db, dim); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ReplaceFileChunks(filePath string, chunks []model.Chunk, relations []model.Relation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteFileRows(tx, filePath); err != nil {
		return err
	}

	chunkStmt, err := tx.Prepare(
		"INSERT INTO chunks (id, file_path, start_line, end_line, language, content, metadata_json) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	ftsStmt, err := tx.Prepare("INSERT INTO chunks_fts (id, content, file_path) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer ftsStmt.Close()

	for _, c := range chunks {
		meta, err := model.ChunkMetadata{Symbols: c.Symbols, Relations: c.Relations}.Marshal()
		if err != nil {
			return err
		}
		if _, err := chunkStmt.Exec(c.ID, c.FilePath, c.StartLine, c.EndLine, c.Language, c.Content, meta); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
		if _, err := ftsStmt.Exec(c.ID, c.Content, c.FilePath); err != nil {
			return fmt.Errorf("insert fts row %s: %w", c.ID, err)
		}
	}

	relStmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO symbol_relations (from_symbol_id, to_symbol_id, relation_type, file_path) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer relStmt.Close()

	for _, r := range relations {
		if r.FromSymbolID == "" || r.ToSymbolID == "" || r.Type == "" {
			continue
		}
		if _, err := relStmt.Exec(r.FromSymbolID, r.ToSymbolID, r.Type, filePath); err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpsertEmbeddings(chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("mismatched chunk ids (%d) and vectors (%d)", len(chunkIDs), len(vectors))
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	delStmt, err := tx.Prepare("DELETE FROM vec_chunks WHERE chunk_id = ?")
	if err != nil {
		return err
	}
	defer delStmt.Close()

	insStmt, err := tx.Prepare("INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer insStmt.Close()

	for i, id := range chunkIDs {
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %s: %w", id, err)
		}
		if _, err := delStmt.Exec(id); err != nil {
			return fmt.Errorf("delete embedding for chunk %s: %w", id, err)
		}
		if _, err := insStmt.Exec(id, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteFile(filePath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteFileRows(tx, filePath); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM file_index_state WHERE file_path = ?", filePath); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteFileRows removes a file's chunk, FTS, vector, and relation rows
// inside an open transaction. The vector rows go first because they are keyed
// by the chunk ids being deleted.
func deleteFileRows(tx *sql.Tx, filePath string) error {
	rows, err := tx.Query("SELECT id FROM chunks WHERE file_path = ?", filePath)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM vec_chunks WHERE chunk_id = ?", id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_path = ?", filePath); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks_fts WHERE file_path = ?", filePath); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM symbol_relations WHERE file_path = ?", filePath); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) SearchText(query string, limit int) ([]LexicalHit, error) {
	rows, err := s.db.Query(`
		SELECT id, rank
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.ID, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) SearchVector(queryVec []float32, limit int) ([]VectorHit, error) {
	blob, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := s.db.Query(`
		SELECT chunk_id, distance
		FROM vec_chunks
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		// Distance to similarity in (0, 1].
		hits = append(hits, VectorHit{ID: id, Similarity: 1.0 / (1.0 + distance)})
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) GetChunksByIDs(ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}

	rows, err := s.db.Query(
		"SELECT id, file_path, start_line, end_line, language, content, metadata_json FROM chunks WHERE id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]model.Chunk, len(ids))
	for rows.Next() {
		var c model.Chunk
		var meta string
		if err := rows.Scan(&c.ID, &c.FilePath, &c.StartLine, &c.EndLine, &c.Language, &c.Content, &meta); err != nil {
			return nil, err
		}
		m, err := model.ParseChunkMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		c.Symbols = m.Symbols
		c.Relations = m.Relations
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's id order; drop unknown ids.
	ordered := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func (s *SQLiteStore) ListRelations() ([]RelationRow, error) {
	rows, err := s.db.Query(
		"SELECT from_symbol_id, to_symbol_id, relation_type, file_path FROM symbol_relations",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RelationRow
	for rows.Next() {
		var r RelationRow
		if err := rows.Scan(&r.FromSymbolID, &r.ToSymbolID, &r.Type, &r.FilePath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FileStates() (map[string]model.Fingerprint, error) {
	rows, err := s.db.Query("SELECT file_path, mtime_ns, size_bytes FROM file_index_state")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]model.Fingerprint)
	for rows.Next() {
		var path string
		var fp model.Fingerprint
		if err := rows.Scan(&path, &fp.ModifiedNanos, &fp.SizeBytes); err != nil {
			return nil, err
		}
		states[path] = fp
	}
	return states, rows.Err()
}

func (s *SQLiteStore) UpsertFileState(state model.FileState) error {
	indexedAt := state.LastIndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO file_index_state (file_path, mtime_ns, size_bytes, last_indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			mtime_ns=excluded.mtime_ns,
			size_bytes=excluded.size_bytes,
			last_indexed_at=excluded.last_indexed_at
	`, state.FilePath, state.ModifiedNanos, state.SizeBytes, indexedAt.UnixNano())
	return err
}

func (s *SQLiteStore) InitProgress(root string, totalFiles int) error {
	_, err := s.db.Exec(`
		INSERT INTO index_progress (id, state, root, total_files, processed_files, started_at, finished_at)
		VALUES (1, ?, ?, ?, 0, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			root=excluded.root,
			total_files=excluded.total_files,
			processed_files=0,
			started_at=excluded.started_at,
			finished_at=NULL
	`, model.StateRunning, root, totalFiles, time.Now().UnixNano())
	return err
}

func (s *SQLiteStore) IncrementProgress(delta int) error {
	_, err := s.db.Exec(
		"UPDATE index_progress SET processed_files = processed_files + ? WHERE id = 1", delta,
	)
	return err
}

func (s *SQLiteStore) FinishProgress() error {
	_, err := s.db.Exec(
		"UPDATE index_progress SET state = ?, finished_at = ? WHERE id = 1",
		model.StateIdle, time.Now().UnixNano(),
	)
	return err
}

func (s *SQLiteStore) GetProgress() (*model.Progress, error) {
	var p model.Progress
	var startedAt int64
	var finishedAt sql.NullInt64
	err := s.db.QueryRow(`
		SELECT state, root, total_files, processed_files, started_at, finished_at
		FROM index_progress
		WHERE id = 1
	`).Scan(&p.State, &p.Root, &p.TotalFiles, &p.ProcessedFiles, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.StartedAt = time.Unix(0, startedAt)
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64)
		p.FinishedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
