package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultScoreThreshold drops weak semantic matches. Cosine similarity below
// this is noise for typical embedding models.
const DefaultScoreThreshold = 0.3

// Config tunes the hybrid retriever.
type Config struct {
	ScoreThreshold      float64 // semantic cutoff (default 0.3)
	CandidateMultiplier int     // each path returns up to mult*topK candidates (default 2)
	RRFK                int     // fusion constant (default 60)
}

// HybridRetriever runs semantic and keyword search concurrently and fuses
// the two ranked lists.
type HybridRetriever struct {
	vectors  VectorStore
	keywords KeywordIndex
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHybridRetriever creates a retriever over the two search paths.
func NewHybridRetriever(vectors VectorStore, keywords KeywordIndex, cfg Config, logger *slog.Logger) *HybridRetriever {
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 2
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		vectors:  vectors,
		keywords: keywords,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/selimacar/sage/internal/retrieval"),
	}
}

// Retrieve fans out to both search paths concurrently, joins them, fuses
// with RRF and truncates to topK. The access filter applies to both paths.
// Either path failing aborts the retrieval: a half-blind answer is worse
// than a retried query.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, queryVector []float32, topK int, filter *AccessFilter) ([]FusedResult, error) {
	ctx, span := r.tracer.Start(ctx, "retrieval.hybrid",
		trace.WithAttributes(attribute.Int("topk", topK)))
	defer span.End()

	limit := topK * r.cfg.CandidateMultiplier

	var (
		wg          sync.WaitGroup
		semantic    []SearchResult
		keyword     []SearchResult
		semanticErr error
		keywordErr  error
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		semantic, semanticErr = r.vectors.Search(ctx, queryVector, SearchParams{
			Limit:          limit,
			ScoreThreshold: r.cfg.ScoreThreshold,
			Filter:         filter,
		})
	}()

	go func() {
		defer wg.Done()
		keyword, keywordErr = r.keywords.Search(ctx, query, limit, filter)
	}()

	wg.Wait()

	if semanticErr != nil {
		return nil, fmt.Errorf("semantic search: %w", semanticErr)
	}
	if keywordErr != nil {
		return nil, fmt.Errorf("keyword search: %w", keywordErr)
	}

	r.logger.Debug("hybrid search joined",
		"semantic", len(semantic), "keyword", len(keyword))

	for i := range semantic {
		semantic[i].Source = SourceSemantic
	}
	for i := range keyword {
		keyword[i].Source = SourceKeyword
	}

	fused := Fuse([][]SearchResult{semantic, keyword}, r.cfg.RRFK)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	span.SetAttributes(attribute.Int("results", len(fused)))
	return fused, nil
}

// SourcesSearched reports how many search paths one query touches.
func (r *HybridRetriever) SourcesSearched() int { return 2 }
