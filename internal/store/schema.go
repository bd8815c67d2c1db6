package store

import (
	"database/sql"
	"fmt"
)

// ddl is the full schema. The vec0 table dimension comes from configuration,
// so the DDL is templated on it.
//
// Layout invariant: the chunk rows, FTS rows, relation rows, and the
// fingerprint row for one file path are always replaced together, so they stay
// mutually consistent after any completed operation.
const ddl = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;

CREATE TABLE IF NOT EXISTS chunks (
    id            TEXT PRIMARY KEY,
    file_path     TEXT NOT NULL,
    start_line    INTEGER NOT NULL,
    end_line      INTEGER NOT NULL,
    language      TEXT NOT NULL,
    content       TEXT NOT NULL,
    metadata_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    id UNINDEXED,
    content,
    file_path UNINDEXED,
    tokenize = "unicode61"
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id TEXT PRIMARY KEY,
    embedding float[%d]
);

CREATE TABLE IF NOT EXISTS file_index_state (
    file_path       TEXT PRIMARY KEY,
    mtime_ns        INTEGER NOT NULL,
    size_bytes      INTEGER NOT NULL,
    last_indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS index_progress (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    state           TEXT NOT NULL,
    root            TEXT,
    total_files     INTEGER NOT NULL,
    processed_files INTEGER NOT NULL,
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER
);

CREATE TABLE IF NOT EXISTS symbol_relations (
    from_symbol_id TEXT NOT NULL,
    to_symbol_id   TEXT NOT NULL,
    relation_type  TEXT NOT NULL,
    file_path      TEXT NOT NULL,
    PRIMARY KEY (from_symbol_id, to_symbol_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_symbol_relations_file ON symbol_relations(file_path);
`

// Init creates the schema tables if they don't exist. dim is the embedding
// dimension of the vec0 table; it must match the configured embedding model.
func Init(db *sql.DB, dim int) error {
	_, err := db.Exec(fmt.Sprintf(ddl, dim))
	return err
}
