// Package answer orchestrates one question-answering query end to end:
// guardrail pre-check, query embedding, hybrid retrieval, generation and
// response parsing. Each query is a fixed sequential pipeline; the only
// internal fan-out happens inside the retriever.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/selimacar/sage/internal/credential"
	"github.com/selimacar/sage/internal/guardrail"
	"github.com/selimacar/sage/internal/llm"
	"github.com/selimacar/sage/internal/retrieval"
)

// DefaultTopK is how many fused results feed the prompt when the request
// does not say otherwise. No cross-encoder re-rank happens on top; that model
// call is deliberately saved.
const DefaultTopK = 5

// Retriever is the hybrid search dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string, queryVector []float32, topK int, filter *retrieval.AccessFilter) ([]retrieval.FusedResult, error)
	SourcesSearched() int
}

// ProviderResolver turns (provider, tenant) into a ready provider instance
// and tracks usage afterwards.
type ProviderResolver interface {
	ProviderFor(ctx context.Context, provider, tenantID string, estimatedTokens int64) (llm.Provider, *credential.Credential, error)
	TrackUsage(provider, tenantID string, tokens, costCents int64)
}

// Options configures a Service.
type Options struct {
	DefaultProvider string // chat provider key when the request names none
	EmbedFallback   string // embedding provider used when the chat backend has no embedding endpoint
	TopK            int
	HistoryWindow   int
	GuardrailMode   guardrail.Mode
	PostCheck       bool  // also run the guardrail over the generated answer
	CostPer1KCents  int64 // flat usage-cost rate; zero disables cost tracking
}

// Service answers questions against the indexed corpus.
type Service struct {
	resolver  ProviderResolver
	retriever Retriever
	analyzer  *guardrail.Analyzer
	cache     *llm.EmbedCache
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewService wires the pipeline. logger may be nil.
func NewService(resolver ProviderResolver, retriever Retriever, analyzer *guardrail.Analyzer, cache *llm.EmbedCache, opts Options, logger *slog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.GuardrailMode == "" {
		opts.GuardrailMode = guardrail.ModeRedact
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = "openai"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver:  resolver,
		retriever: retriever,
		analyzer:  analyzer,
		cache:     cache,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/selimacar/sage/internal/answer"),
	}
}

// Request is one question against the corpus.
type Request struct {
	Query       string
	TenantID    string
	PrincipalID string // scopes retrieval; empty means unrestricted caller
	Provider    string // overrides Options.DefaultProvider
	TopK        int
	History     []llm.Message
}

// Citation links an answer back to a retrieved chunk.
type Citation struct {
	SourceIndex   int    `json:"source_index"` // 1-based label used in the answer
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
}

// Result is the structured outcome of one query. A guardrail block is a
// Result with Blocked set, never an error: it is an expected, frequent
// outcome.
type Result struct {
	Answer          string         `json:"answer"`
	Citations       []Citation     `json:"citations"`
	Confidence      float64        `json:"confidence"`
	IsLowConfidence bool           `json:"is_low_confidence"`
	Tokens          llm.TokenUsage `json:"tokens"`
	Provider        string         `json:"provider"`
	Model           string         `json:"model,omitempty"`
	LatencyMs       int64          `json:"latency_ms"`
	SourcesSearched int            `json:"sources_searched"`

	Blocked     bool   `json:"blocked,omitempty"`
	BlockReason string `json:"block_reason,omitempty"`
}

// Ask runs the full pipeline for one query.
func (s *Service) Ask(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "answer.ask",
		trace.WithAttributes(attribute.String("tenant", req.TenantID)))
	defer span.End()

	providerKey := req.Provider
	if providerKey == "" {
		providerKey = s.opts.DefaultProvider
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}

	check := s.analyzer.Analyze(req.Query, s.opts.GuardrailMode)
	if check.Blocked {
		s.logger.Info("query blocked by guardrail",
			"tenant", req.TenantID, "findings", len(check.Findings))
		return &Result{
			Blocked:     true,
			BlockReason: blockReason(check),
			LatencyMs:   time.Since(start).Milliseconds(),
		}, nil
	}
	query := check.RedactedText

	estimated := int64(llm.EstimateTokens(query) + estimateHistory(req.History))
	chat, cred, err := s.resolver.ProviderFor(ctx, providerKey, req.TenantID, estimated)
	if err != nil {
		return nil, err
	}

	vector, err := s.embed(ctx, query, chat, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filter *retrieval.AccessFilter
	if req.PrincipalID != "" {
		filter = &retrieval.AccessFilter{PrincipalID: req.PrincipalID}
	}
	fused, err := s.retriever.Retrieve(ctx, query, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	system := buildSystemPrompt(fused)
	history := trimHistory(req.History, s.opts.HistoryWindow)
	resp, err := chat.GenerateResponse(ctx, system, query, history, nil)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	p := parseResponse(resp.Content)
	answer := p.Answer
	if s.opts.PostCheck {
		post := s.analyzer.Analyze(answer, guardrail.ModeRedact)
		if post.HasPII {
			answer = post.RedactedText
		}
	}

	tokens := resp.Tokens
	if tokens.Total == 0 {
		tokens.Prompt = llm.EstimateTokens(system + query)
		tokens.Completion = llm.EstimateTokens(resp.Content)
		tokens.Total = tokens.Prompt + tokens.Completion
	}
	s.resolver.TrackUsage(providerKey, req.TenantID,
		int64(tokens.Total), int64(tokens.Total)*s.opts.CostPer1KCents/1000)

	model := resp.Model
	if model == "" && cred != nil {
		model = cred.Model
	}

	result := &Result{
		Answer:          answer,
		Citations:       mapCitations(p.CitedIndexes, fused),
		Confidence:      p.Confidence,
		IsLowConfidence: p.IsLowConfidence,
		Tokens:          tokens,
		Provider:        providerKey,
		Model:           model,
		LatencyMs:       time.Since(start).Milliseconds(),
		SourcesSearched: s.retriever.SourcesSearched(),
	}
	span.SetAttributes(
		attribute.Int("citations", len(result.Citations)),
		attribute.Float64("confidence", result.Confidence))
	return result, nil
}

// SuggestTags produces short topic tags for text via the tenant's provider.
func (s *Service) SuggestTags(ctx context.Context, tenantID, text string) ([]string, error) {
	chat, _, err := s.resolver.ProviderFor(ctx, s.opts.DefaultProvider, tenantID, int64(llm.EstimateTokens(text)))
	if err != nil {
		return nil, err
	}
	return chat.GenerateTags(ctx, text)
}

// embed computes the query vector through the cache. A chat backend without
// an embedding endpoint returns a nil vector; the configured fallback
// provider fills the gap. The fallback policy lives here, not inside any
// backend.
func (s *Service) embed(ctx context.Context, query string, chat llm.Provider, tenantID string) ([]float32, error) {
	vector, err := s.cache.GetOrCompute(ctx, query, chat.GenerateEmbedding)
	if err != nil {
		return nil, err
	}
	if vector != nil {
		return vector, nil
	}

	if s.opts.EmbedFallback == "" {
		return nil, fmt.Errorf("provider %q has no embedding endpoint and no fallback is configured", chat.Name())
	}
	fallback, _, err := s.resolver.ProviderFor(ctx, s.opts.EmbedFallback, tenantID, int64(llm.EstimateTokens(query)))
	if err != nil {
		return nil, fmt.Errorf("embedding fallback %q: %w", s.opts.EmbedFallback, err)
	}
	vector, err = s.cache.GetOrCompute(ctx, query, fallback.GenerateEmbedding)
	if err != nil {
		return nil, err
	}
	if vector == nil {
		return nil, fmt.Errorf("embedding fallback %q has no embedding endpoint", s.opts.EmbedFallback)
	}
	return vector, nil
}

// mapCitations resolves 1-based source labels back to chunks. Indexes with no
// matching candidate are dropped, never an error: models hallucinate labels.
func mapCitations(indexes []int, fused []retrieval.FusedResult) []Citation {
	var cites []Citation
	for _, idx := range indexes {
		if idx < 1 || idx > len(fused) {
			continue
		}
		r := fused[idx-1]
		cites = append(cites, Citation{
			SourceIndex:   idx,
			ChunkID:       r.ID,
			DocumentID:    r.DocumentID,
			DocumentTitle: r.DocumentTitle,
			Snippet:       snippet(r.Content, 160),
		})
	}
	return cites
}

func blockReason(res guardrail.Result) string {
	if res.HasInjection {
		return "prompt injection detected"
	}
	return "sensitive data detected"
}

func estimateHistory(history []llm.Message) int {
	total := 0
	for _, m := range history {
		total += llm.EstimateTokens(m.Content)
	}
	return total
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
