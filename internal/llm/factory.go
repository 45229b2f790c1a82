package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds everything needed to construct any provider.
type Config struct {
	Provider   string // "openai", "anthropic", "gemini", "custom"
	APIKey     string
	Model      string
	BaseURL    string // override for self-hosted / OpenAI-compatible endpoints
	EmbedModel string // embedding model (providers with an embedding endpoint)

	MaxAttempts int           // rate-limit retry attempts (default 3)
	BaseDelay   time.Duration // initial backoff delay (default 1s)
}

// Constructor builds a Provider from config.
type Constructor func(cfg Config) (Provider, error)

// Factory creates Provider instances from string keys. The set of variants is
// closed at wiring time: unknown keys are an error listing what is registered,
// not a panic.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory creates an empty factory. Built-in backends register themselves
// at wiring time (see cmd/sage) so the llm package stays import-cycle free.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Register adds a provider constructor under the given key.
func (f *Factory) Register(name string, ctor Constructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider and wraps it with rate-limit retry.
func (f *Factory) Create(cfg Config) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Provider))
	ctor, ok := f.constructors[key]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q, registered: %v", cfg.Provider, f.Names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	return WithRetry(provider, &RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
	}), nil
}

// Names returns the registered provider keys, sorted.
func (f *Factory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders documents the built-in presets. OpenAI-compatible APIs
// (Groq, Together, vLLM, Ollama, etc.) use the "openai" backend with a custom
// base_url.
var KnownProviders = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"anthropic": "https://api.anthropic.com/v1",
	"gemini":    "https://generativelanguage.googleapis.com/v1beta",
}

// ParseTagList splits model output into clean tags. Backends share this for
// tag generation: models return comma- or newline-separated lists, sometimes
// numbered or bulleted.
func ParseTagList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	var tags []string
	for _, f := range fields {
		tag := strings.TrimSpace(f)
		tag = strings.TrimLeft(tag, "-*0123456789. ")
		tag = strings.Trim(tag, `"'`)
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || len(tag) > 64 {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}
