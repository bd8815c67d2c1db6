package store

import "cinder/internal/model"

// LexicalHit is one ranked full-text match. Rank is the FTS5 bm25 rank:
// lower (more negative) is better.
type LexicalHit struct {
	ID   string
	Rank float64
}

// VectorHit is one nearest-neighbor match with similarity in (0, 1].
type VectorHit struct {
	ID         string
	Similarity float64
}

// RelationRow is a persisted relation with the file path it belongs to.
type RelationRow struct {
	model.Relation
	FilePath string
}
