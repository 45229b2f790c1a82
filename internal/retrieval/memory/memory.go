// Package memory provides in-process vector and keyword indexes. They back
// tests and local development; production deployments use the Qdrant and
// Neo4j implementations.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/selimacar/sage/internal/retrieval"
)

type entry struct {
	chunk     retrieval.Chunk
	vector    []float32
	principal string // empty = global
}

// Index holds chunks with their vectors and serves both search paths.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Add indexes a chunk. principalID scopes visibility; empty means global.
func (ix *Index) Add(chunk retrieval.Chunk, vector []float32, principalID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, entry{chunk: chunk, vector: vector, principal: principalID})
}

// Search implements retrieval.VectorStore using cosine similarity.
func (ix *Index) Search(_ context.Context, vector []float32, params retrieval.SearchParams) ([]retrieval.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var results []retrieval.SearchResult
	for _, e := range ix.entries {
		if !visible(e, params.Filter) {
			continue
		}
		score := cosine(vector, e.vector)
		if score < params.ScoreThreshold {
			continue
		}
		results = append(results, asResult(e.chunk, score, retrieval.SourceSemantic))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if params.Limit > 0 && len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

// SearchText implements retrieval.KeywordIndex with term-frequency scoring.
func (ix *Index) SearchText(_ context.Context, text string, limit int, filter *retrieval.AccessFilter) ([]retrieval.SearchResult, error) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var results []retrieval.SearchResult
	for _, e := range ix.entries {
		if !visible(e, filter) {
			continue
		}
		content := strings.ToLower(e.chunk.Content)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(content, term))
		}
		if score == 0 {
			continue
		}
		results = append(results, asResult(e.chunk, score, retrieval.SourceKeyword))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordAdapter lets the same Index satisfy retrieval.KeywordIndex.
type keywordAdapter struct{ ix *Index }

func (a keywordAdapter) Search(ctx context.Context, text string, limit int, filter *retrieval.AccessFilter) ([]retrieval.SearchResult, error) {
	return a.ix.SearchText(ctx, text, limit, filter)
}

// Keyword returns the index viewed as a retrieval.KeywordIndex.
func (ix *Index) Keyword() retrieval.KeywordIndex { return keywordAdapter{ix: ix} }

func visible(e entry, filter *retrieval.AccessFilter) bool {
	if filter == nil || e.principal == "" {
		return true
	}
	return e.principal == filter.PrincipalID
}

func asResult(c retrieval.Chunk, score float64, src retrieval.Source) retrieval.SearchResult {
	return retrieval.SearchResult{
		ID:            c.ID,
		DocumentID:    c.DocumentID,
		DocumentTitle: c.DocumentTitle,
		Content:       c.Content,
		Score:         score,
		Source:        src,
	}
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) < 3 { // skip stop-ish short tokens
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ retrieval.VectorStore = (*Index)(nil)
