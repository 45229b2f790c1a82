// Package neotext implements the keyword search path over a Neo4j full-text
// index on chunk nodes.
package neotext

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/selimacar/sage/internal/retrieval"
)

// DefaultIndexName is the full-text index the ingestion pipeline maintains
// over (:Chunk) content.
const DefaultIndexName = "chunk_content"

// Index implements retrieval.KeywordIndex using Neo4j's full-text search.
type Index struct {
	driver neo4j.DriverWithContext
	name   string
}

// New connects to Neo4j and verifies connectivity up front.
func New(ctx context.Context, uri, username, password, indexName string) (*Index, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	if indexName == "" {
		indexName = DefaultIndexName
	}
	return &Index{driver: driver, name: indexName}, nil
}

// EnsureIndex creates the full-text index if it does not exist. Called by
// operational tooling, not the query path.
func (ix *Index) EnsureIndex(ctx context.Context) error {
	session := ix.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			fmt.Sprintf("CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (c:Chunk) ON EACH [c.content]", ix.name),
			nil)
	})
	if err != nil {
		return fmt.Errorf("ensure fulltext index: %w", err)
	}
	return nil
}

// Search queries the full-text index. Lucene operators in user text are
// escaped so the query is always treated as literal terms. The access filter
// is applied in the Cypher WHERE clause, matching the semantic path.
func (ix *Index) Search(ctx context.Context, text string, limit int, filter *retrieval.AccessFilter) ([]retrieval.SearchResult, error) {
	query := escapeLucene(text)
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	session := ix.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	params := map[string]any{
		"index": ix.name,
		"query": query,
		"limit": limit,
	}
	cypher := "CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score "
	if filter != nil {
		cypher += "WHERE node.principal_id IS NULL OR node.principal_id = $principal "
		params["principal"] = filter.PrincipalID
	}
	cypher += "RETURN node.id AS id, node.document_id AS doc, node.document_title AS title, node.content AS content, score " +
		"LIMIT $limit"

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		var results []retrieval.SearchResult
		for records.Next(ctx) {
			rec := records.Record()
			r := retrieval.SearchResult{Source: retrieval.SourceKeyword}
			if v, ok := rec.Get("id"); ok && v != nil {
				r.ID = v.(string)
			}
			if v, ok := rec.Get("doc"); ok && v != nil {
				r.DocumentID = v.(string)
			}
			if v, ok := rec.Get("title"); ok && v != nil {
				r.DocumentTitle = v.(string)
			}
			if v, ok := rec.Get("content"); ok && v != nil {
				r.Content = v.(string)
			}
			if v, ok := rec.Get("score"); ok && v != nil {
				r.Score = v.(float64)
			}
			results = append(results, r)
		}
		return results, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	return result.([]retrieval.SearchResult), nil
}

// Ping re-verifies connectivity, for readiness probes.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.driver.VerifyConnectivity(ctx)
}

func (ix *Index) Close(ctx context.Context) error {
	return ix.driver.Close(ctx)
}

// escapeLucene neutralizes Lucene query syntax in user input.
func escapeLucene(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '-', '&', '|', '!', '(', ')', '{', '}', '[', ']', '^', '"', '~', '*', '?', ':', '\\', '/':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ retrieval.KeywordIndex = (*Index)(nil)
