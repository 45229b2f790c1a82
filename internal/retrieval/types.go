// Package retrieval runs hybrid semantic+keyword search over an indexed
// document corpus and merges the ranked lists with Reciprocal Rank Fusion.
package retrieval

import "context"

// Source says which search path produced a result.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceKeyword  Source = "keyword"
)

// Chunk is a bounded slice of a source document, independently embedded and
// indexed. Chunks are owned by the document pipeline: this core references
// them and never mutates them.
type Chunk struct {
	ID            string            `json:"id"`
	DocumentID    string            `json:"document_id"`
	DocumentTitle string            `json:"document_title"`
	Content       string            `json:"content"`
	VectorRef     string            `json:"vector_ref,omitempty"`
	ChunkIndex    int               `json:"chunk_index"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SearchResult is a single match from one search path, created per query.
type SearchResult struct {
	ID            string  `json:"id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Source        Source  `json:"source"`
}

// FusedResult is a SearchResult carrying its combined fusion score. Higher
// means more relevant.
type FusedResult struct {
	SearchResult
	FusionScore float64 `json:"fusion_score"`
}

// AccessFilter restricts a search to chunks the requesting principal may
// see: global chunks plus chunks scoped to the principal. It applies to both
// the semantic and the keyword path.
type AccessFilter struct {
	PrincipalID string
}

// SearchParams tunes one vector search.
type SearchParams struct {
	Limit          int
	ScoreThreshold float64
	Filter         *AccessFilter
}

// VectorStore is the external vector index interface. Upsert/delete are
// owned by the ingestion pipeline, not this core.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, params SearchParams) ([]SearchResult, error)
}

// KeywordIndex is the external full-text index interface.
type KeywordIndex interface {
	Search(ctx context.Context, text string, limit int, filter *AccessFilter) ([]SearchResult, error)
}
