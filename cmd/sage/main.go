package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selimacar/sage/internal/answer"
	"github.com/selimacar/sage/internal/config"
	"github.com/selimacar/sage/internal/credential"
	"github.com/selimacar/sage/internal/guardrail"
	"github.com/selimacar/sage/internal/llm"
	"github.com/selimacar/sage/internal/llm/anthropic"
	"github.com/selimacar/sage/internal/llm/gemini"
	"github.com/selimacar/sage/internal/llm/openai"
	"github.com/selimacar/sage/internal/observability"
	"github.com/selimacar/sage/internal/retrieval"
	"github.com/selimacar/sage/internal/retrieval/memory"
	"github.com/selimacar/sage/internal/retrieval/neotext"
	"github.com/selimacar/sage/internal/retrieval/qdrant"
	"github.com/selimacar/sage/internal/secrets"
	"github.com/selimacar/sage/internal/server"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	var (
		configPath string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:   "sage",
		Short: "Retrieval-augmented question answering over a private document corpus",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/sage.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	var (
		tenantID    string
		principalID string
		provider    string
		topK        int
		local       bool
		corpusPath  string
	)
	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question against the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runAsk(configPath, query, tenantID, principalID, provider, topK, local, corpusPath, jsonOutput)
		},
	}
	askCmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant (organization) id")
	askCmd.Flags().StringVar(&principalID, "principal", "", "Principal id for access-scoped chunks")
	askCmd.Flags().StringVar(&provider, "provider", "", "Override the configured chat provider")
	askCmd.Flags().IntVar(&topK, "top-k", 0, "Override the number of sources in the prompt")
	askCmd.Flags().BoolVar(&local, "local", false, "Use an in-memory corpus instead of Qdrant/Neo4j")
	askCmd.Flags().StringVar(&corpusPath, "corpus", "", "JSONL corpus file for --local mode")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-12s %s\n", name, url)
			}
			fmt.Println("  custom       (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in sage.yaml or via environment:")
			fmt.Println("  SAGE_LLM_PROVIDER=anthropic")
			fmt.Println("  SAGE_LLM_API_KEY=sk-ant-...")
			fmt.Println("  SAGE_LLM_MODEL=claude-sonnet-4-20250514")
		},
	}

	var mode string
	guardrailCmd := &cobra.Command{
		Use:   "guardrail [text]",
		Short: "Run the guardrail analyzer over text and show findings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuardrail(strings.Join(args, " "), mode, jsonOutput)
		},
	}
	guardrailCmd.Flags().StringVar(&mode, "mode", "redact", "Guardrail mode: redact or block")

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the answering pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, local, corpusPath)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&local, "local", false, "Use an in-memory corpus instead of Qdrant/Neo4j")
	serveCmd.Flags().StringVar(&corpusPath, "corpus", "", "JSONL corpus file for --local mode")

	rootCmd.AddCommand(askCmd, providersCmd, guardrailCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAsk(configPath, query, tenantID, principalID, providerOverride string, topK int, local bool, corpusPath string, jsonOutput bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}

	logger := newLogger(cfg.Log)
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Environment:  cfg.Tracing.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "sage",
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tp.Shutdown(ctx)

	resolver, err := buildResolver(cfg, logger)
	if err != nil {
		return err
	}

	retriever, _, cleanup, err := buildRetriever(ctx, cfg, local, corpusPath, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := answer.NewService(
		resolver,
		retriever,
		guardrail.NewAnalyzer(),
		llm.NewEmbedCache(cfg.Cache.EmbedCapacity),
		answer.Options{
			DefaultProvider: cfg.LLM.Provider,
			EmbedFallback:   cfg.LLM.EmbedFallback,
			TopK:            cfg.Retrieval.TopK,
			GuardrailMode:   guardrail.Mode(cfg.Guardrail.Mode),
			PostCheck:       cfg.Guardrail.PostCheck,
		},
		logger,
	)

	res, err := svc.Ask(ctx, answer.Request{
		Query:       query,
		TenantID:    tenantID,
		PrincipalID: principalID,
		Provider:    providerOverride,
		TopK:        topK,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if res.Blocked {
		fmt.Printf("Blocked: %s\n", res.BlockReason)
		return nil
	}
	fmt.Println(res.Answer)
	if len(res.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range res.Citations {
			fmt.Printf("  [%d] %s (%s)\n", c.SourceIndex, c.DocumentTitle, c.DocumentID)
		}
	}
	fmt.Printf("\nconfidence=%.2f tokens=%d latency=%dms provider=%s\n",
		res.Confidence, res.Tokens.Total, res.LatencyMs, res.Provider)
	if res.IsLowConfidence {
		fmt.Println("Note: low-confidence answer, the corpus may not cover this topic.")
	}
	return nil
}

func runServe(configPath, addr string, local bool, corpusPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	logger := newLogger(cfg.Log)
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Environment:  cfg.Tracing.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "sage",
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	resolver, err := buildResolver(cfg, logger)
	if err != nil {
		return err
	}

	retriever, probes, cleanup, err := buildRetriever(ctx, cfg, local, corpusPath, logger)
	if err != nil {
		return err
	}

	cache := llm.NewEmbedCache(cfg.Cache.EmbedCapacity)
	svc := answer.NewService(
		resolver,
		retriever,
		guardrail.NewAnalyzer(),
		cache,
		answer.Options{
			DefaultProvider: cfg.LLM.Provider,
			EmbedFallback:   cfg.LLM.EmbedFallback,
			TopK:            cfg.Retrieval.TopK,
			GuardrailMode:   guardrail.Mode(cfg.Guardrail.Mode),
			PostCheck:       cfg.Guardrail.PostCheck,
		},
		logger,
	)

	health := server.NewHealth(version)
	for name, probe := range probes {
		health.Register(name, server.PingChecker(probe))
	}

	sd := server.NewShutdown(server.DefaultShutdownTimeout, logger)
	sd.Register("tracing", 80, tp.Shutdown)
	sd.Register("retriever", 90, func(context.Context) error {
		cleanup()
		return nil
	})

	api := server.NewAPI(svc, observability.Metrics(), health, logger)
	logger.Info("listening", "addr", addr, "local", local)
	return server.Serve(addr, api, sd)
}

// buildResolver wires the credential store, decryptor and provider factory.
// Key material comes from the config file or the secrets manager; without
// either, the CLI runs in dev mode with an ephemeral key and an in-memory
// store seeded from llm.api_key.
func buildResolver(cfg *config.Config, logger *slog.Logger) (*credential.Resolver, error) {
	ctx := context.Background()
	sm, err := secrets.NewManager(nil)
	if err != nil {
		return nil, fmt.Errorf("init secrets: %w", err)
	}

	encoded := cfg.Crypto.Key
	if encoded == "" {
		encoded = sm.GetOrDefault(ctx, secrets.KeyCredentialAES, "")
	}
	key, err := config.CryptoConfig{Key: encoded}.DecodeKey()
	if err != nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate dev key: %w", err)
		}
	}
	dec, err := credential.NewDecryptor(key)
	if err != nil {
		return nil, fmt.Errorf("init decryptor: %w", err)
	}

	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey = sm.GetOrDefault(ctx, secrets.KeyLLMAPIKey, "")
	}

	store := credential.NewMemoryStore()
	if apiKey != "" {
		sealed, err := dec.Encrypt(apiKey)
		if err != nil {
			return nil, fmt.Errorf("seal dev credential: %w", err)
		}
		store.Save(&credential.Credential{
			ID:           "dev-platform",
			Provider:     cfg.LLM.Provider,
			Scope:        credential.ScopePlatform,
			Model:        cfg.LLM.Model,
			BaseURL:      cfg.LLM.BaseURL,
			EncryptedKey: sealed,
			IsActive:     true,
		})
	}

	factory := llm.NewFactory()
	factory.Register("openai", func(c llm.Config) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	factory.Register("anthropic", func(c llm.Config) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("gemini", func(c llm.Config) (llm.Provider, error) {
		return gemini.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	factory.Register("custom", func(c llm.Config) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})

	return credential.NewResolver(store, dec, factory, logger), nil
}

// buildRetriever connects the two search paths. Local mode loads a JSONL
// corpus into in-process indexes, useful for demos and smoke tests. The
// returned probes feed readiness checks when serving.
func buildRetriever(ctx context.Context, cfg *config.Config, local bool, corpusPath string, logger *slog.Logger) (*retrieval.HybridRetriever, map[string]func(context.Context) error, func(), error) {
	rcfg := retrieval.Config{
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		RRFK:           cfg.Retrieval.RRFK,
	}

	if local {
		ix := memory.NewIndex()
		if corpusPath != "" {
			if err := loadCorpus(ix, corpusPath); err != nil {
				return nil, nil, nil, fmt.Errorf("load corpus: %w", err)
			}
		}
		return retrieval.NewHybridRetriever(ix, ix.Keyword(), rcfg, logger), nil, func() {}, nil
	}

	vectors, err := qdrant.New(cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect vector store: %w", err)
	}
	keywords, err := neotext.New(ctx, cfg.Keyword.URI, cfg.Keyword.Username, cfg.Keyword.Password, cfg.Keyword.Index)
	if err != nil {
		vectors.Close()
		return nil, nil, nil, fmt.Errorf("connect keyword index: %w", err)
	}

	probes := map[string]func(context.Context) error{
		"vector":  vectors.Ping,
		"keyword": keywords.Ping,
	}
	cleanup := func() {
		vectors.Close()
		keywords.Close(context.Background())
	}
	return retrieval.NewHybridRetriever(vectors, keywords, rcfg, logger), probes, cleanup, nil
}

// loadCorpus reads one chunk per JSONL line: the retrieval.Chunk fields plus
// optional "vector" and "principal_id".
func loadCorpus(ix *memory.Index, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var row struct {
			retrieval.Chunk
			Vector      []float32 `json:"vector"`
			PrincipalID string    `json:"principal_id"`
		}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return fmt.Errorf("parse corpus line: %w", err)
		}
		ix.Add(row.Chunk, row.Vector, row.PrincipalID)
	}
	return nil
}

func runGuardrail(text, mode string, jsonOutput bool) error {
	analyzer := guardrail.NewAnalyzer()
	res := analyzer.Analyze(text, guardrail.Mode(mode))

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if res.Blocked {
		fmt.Println("BLOCKED")
	} else {
		fmt.Println("OK")
	}
	for _, f := range res.Findings {
		fmt.Printf("  %-10s %-22s %s\n", f.Category, f.Label, f.OriginalValue)
	}
	if res.HasPII {
		fmt.Printf("\nRedacted: %s\n", res.RedactedText)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
