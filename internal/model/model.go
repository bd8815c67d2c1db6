package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Symbol kinds recognized by the extractor.
const (
	KindClass     = "class"
	KindStruct    = "struct"
	KindInterface = "interface"
	KindEnum      = "enum"
	KindMethod    = "method"
	KindProperty  = "property"
)

// Relation types. The set is open to extension.
const (
	RelationInherits = "inherits"
	RelationCalls    = "calls"
)

// Search modes attached to results.
const (
	ModeHybrid  = "hybrid"
	ModeLexical = "lexical"
	ModeVector  = "vector"
)

// Index progress states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Symbol is one declared code entity with a line span.
//
// (Kind, Name, StartLine) uniquely identifies a symbol within one file parse;
// distinct symbols sharing all three collide and the last one wins.
type Symbol struct {
	ID        string `json:"id"`
	FilePath  string `json:"file_path"`
	Name      string `json:"symbol_name"`
	Kind      string `json:"symbol_kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature,omitempty"`
	Docstring string `json:"docstring,omitempty"`
}

// SymbolID derives the stable symbol identifier from its declaration site.
func SymbolID(filePath string, startLine int, name string) string {
	return fmt.Sprintf("%s:%d:%s", filePath, startLine, name)
}

// Relation is a directed edge between two symbols in the same file.
// Identity is the (From, To, Type) triple; duplicate edges collapse.
type Relation struct {
	FromSymbolID string `json:"from_symbol_id"`
	ToSymbolID   string `json:"to_symbol_id"`
	Type         string `json:"relation_type"`
}

// Chunk is a retrievable slice of a file plus its provenance.
type Chunk struct {
	ID        string     `json:"id"`
	FilePath  string     `json:"file_path"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Content   string     `json:"content"`
	Language  string     `json:"language"`
	Symbols   []Symbol   `json:"symbols,omitempty"`
	Relations []Relation `json:"relations,omitempty"`
}

// ChunkMetadata is the serialized form of a chunk's symbol and relation
// subsets, stored in the metadata column. All storage-boundary access goes
// through Marshal/ParseChunkMetadata rather than ad hoc maps.
type ChunkMetadata struct {
	Symbols   []Symbol   `json:"symbols"`
	Relations []Relation `json:"relations"`
}

func (m ChunkMetadata) Marshal() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal chunk metadata: %w", err)
	}
	return string(b), nil
}

func ParseChunkMetadata(raw string) (ChunkMetadata, error) {
	var m ChunkMetadata
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, fmt.Errorf("parse chunk metadata: %w", err)
	}
	return m, nil
}

// FileState is the per-file fingerprint used for incremental decisions.
// One row per file, overwritten on every (re)index of that file.
type FileState struct {
	FilePath      string    `json:"file_path"`
	ModifiedNanos int64     `json:"mtime_ns"`
	SizeBytes     int64     `json:"size_bytes"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
}

// Fingerprint is the (mtime, size) pair compared byte-for-byte during sync.
// No content hashing: a touch-only mtime change reprocesses the file.
type Fingerprint struct {
	ModifiedNanos int64
	SizeBytes     int64
}

func (s FileState) Fingerprint() Fingerprint {
	return Fingerprint{ModifiedNanos: s.ModifiedNanos, SizeBytes: s.SizeBytes}
}

// Progress is the singleton record for the running or most recent sync pass.
// FinishedAt is nil while a pass is running.
type Progress struct {
	State          string     `json:"state"`
	Root           string     `json:"root,omitempty"`
	TotalFiles     int        `json:"total_files"`
	ProcessedFiles int        `json:"processed_files"`
	StartedAt      time.Time  `json:"started_at,omitzero"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// SearchResult is one ranked hit. Ephemeral, never persisted.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Mode  string  `json:"mode"`
}
