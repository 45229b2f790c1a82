package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Keyword   KeywordConfig   `mapstructure:"keyword"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type LLMConfig struct {
	Provider      string  `mapstructure:"provider"`       // default chat provider key
	EmbedFallback string  `mapstructure:"embed_fallback"` // embedding provider for chat-only backends
	Model         string  `mapstructure:"model"`
	APIKey        string  `mapstructure:"api_key"` // dev-mode platform key, bypasses the credential store
	BaseURL       string  `mapstructure:"base_url"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type KeywordConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Index    string `mapstructure:"index"`
}

type GuardrailConfig struct {
	Mode      string `mapstructure:"mode"` // "redact" or "block"
	PostCheck bool   `mapstructure:"post_check"`
}

type RetrievalConfig struct {
	TopK           int     `mapstructure:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	RRFK           int     `mapstructure:"rrf_k"`
}

type CacheConfig struct {
	EmbedCapacity int `mapstructure:"embed_capacity"`
}

type CryptoConfig struct {
	// Key is the base64-encoded 32-byte AES key for credential decryption.
	Key string `mapstructure:"key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Environment  string  `mapstructure:"environment"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// DecodeKey decodes the configured AES key.
func (c CryptoConfig) DecodeKey() ([]byte, error) {
	if c.Key == "" {
		return nil, fmt.Errorf("crypto.key is not set")
	}
	key, err := base64.StdEncoding.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("crypto.key is not valid base64: %w", err)
	}
	return key, nil
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" && c.Crypto.Key == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but neither api_key nor crypto.key is set", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if mode := c.Guardrail.Mode; mode != "" && mode != "redact" && mode != "block" {
		warnings = append(warnings, fmt.Sprintf("guardrail mode '%s' is unknown, expected 'redact' or 'block'", mode))
	}

	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf("retrieval score_threshold %.2f is outside [0.0, 1.0]", c.Retrieval.ScoreThreshold))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment.
// Default returns the built-in defaults without reading a config file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return &Config{}
	}
	return &cfg
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.embed_fallback", "openai")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "chunks")
	v.SetDefault("keyword.uri", "bolt://localhost:7687")
	v.SetDefault("keyword.index", "chunk_content")
	v.SetDefault("guardrail.mode", "redact")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.score_threshold", 0.3)
	v.SetDefault("retrieval.rrf_k", 60)
	v.SetDefault("cache.embed_capacity", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.sample_rate", 1.0)
}
