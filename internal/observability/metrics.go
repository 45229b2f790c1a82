package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds registered metrics and renders them in Prometheus
// text format. No client library dependency; the format is trivial to emit.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Histogram tracks a distribution with cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets get the
// default latency buckets.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{name: name, help: help, buckets: buckets, counts: make([]uint64, len(buckets))}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns latency buckets in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the time elapsed since start, in seconds.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus renders every metric, sorted by name for stable output.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeSimple(w, c.name, "counter", c.help, c.value)
		c.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeSimple(w, g.name, "gauge", g.help, g.value)
		g.mu.Unlock()
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeSimple(w io.Writer, name, kind, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %s\n",
		name, help, name, kind, name, formatFloat(value))
}

func writeHistogram(w io.Writer, h *Histogram) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(w, "%s_sum %s\n", h.name, formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// QueryMetrics are the pipeline-level metrics.
type QueryMetrics struct {
	Registry *MetricsRegistry

	QueriesTotal    *Counter
	QueriesBlocked  *Counter
	QueryDuration   *Histogram
	LowConfidence   *Counter
	CitationsTotal  *Counter
	LLMRequests     *Counter
	LLMTokensTotal  *Counter
	LLMErrors       *Counter
	EmbedCacheHits  *Gauge
	EmbedCacheMiss  *Gauge
	RetrieveResults *Histogram
}

// NewQueryMetrics registers the pipeline metric set.
func NewQueryMetrics() *QueryMetrics {
	r := NewMetricsRegistry()
	return &QueryMetrics{
		Registry: r,

		QueriesTotal:   r.NewCounter("sage_queries_total", "Total queries answered"),
		QueriesBlocked: r.NewCounter("sage_queries_blocked_total", "Queries blocked by the guardrail"),
		QueryDuration:  r.NewHistogram("sage_query_duration_seconds", "End-to-end query latency", nil),
		LowConfidence:  r.NewCounter("sage_low_confidence_total", "Answers flagged low confidence"),
		CitationsTotal: r.NewCounter("sage_citations_total", "Citations attached to answers"),

		LLMRequests:    r.NewCounter("sage_llm_requests_total", "Language-model API calls"),
		LLMTokensTotal: r.NewCounter("sage_llm_tokens_total", "Tokens consumed across providers"),
		LLMErrors:      r.NewCounter("sage_llm_errors_total", "Failed language-model calls"),

		EmbedCacheHits: r.NewGauge("sage_embed_cache_hits", "Embedding cache hits since start"),
		EmbedCacheMiss: r.NewGauge("sage_embed_cache_misses", "Embedding cache misses since start"),

		RetrieveResults: r.NewHistogram("sage_retrieval_results", "Fused results per query",
			[]float64{0, 1, 2, 5, 10, 20, 50}),
	}
}

// RecordQuery records the outcome of one answered query.
func (m *QueryMetrics) RecordQuery(duration time.Duration, blocked, lowConfidence bool, citations int) {
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(duration.Seconds())
	if blocked {
		m.QueriesBlocked.Inc()
		return
	}
	if lowConfidence {
		m.LowConfidence.Inc()
	}
	m.CitationsTotal.Add(float64(citations))
}

// RecordLLMCall records one provider call.
func (m *QueryMetrics) RecordLLMCall(tokens int, err error) {
	m.LLMRequests.Inc()
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrors.Inc()
	}
}

// SetCacheStats mirrors embedding-cache counters into gauges.
func (m *QueryMetrics) SetCacheStats(hits, misses int64) {
	m.EmbedCacheHits.Set(float64(hits))
	m.EmbedCacheMiss.Set(float64(misses))
}

// Handler returns the metrics endpoint handler.
func (m *QueryMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

var (
	globalMetrics *QueryMetrics
	metricsOnce   sync.Once
)

// Metrics returns the process-wide metric set.
func Metrics() *QueryMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewQueryMetrics()
	})
	return globalMetrics
}
