package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: anthropic
  embed_fallback: openai
  model: claude-test
vector:
  host: qdrant.internal
  port: 6334
  collection: kb_chunks
keyword:
  uri: bolt://neo4j.internal:7687
  username: neo4j
  password: secret
guardrail:
  mode: block
  post_check: true
retrieval:
  top_k: 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.EmbedFallback != "openai" {
		t.Errorf("llm config = %+v", cfg.LLM)
	}
	if cfg.Vector.Collection != "kb_chunks" {
		t.Errorf("vector config = %+v", cfg.Vector)
	}
	if cfg.Keyword.URI != "bolt://neo4j.internal:7687" {
		t.Errorf("keyword config = %+v", cfg.Keyword)
	}
	if cfg.Guardrail.Mode != "block" || !cfg.Guardrail.PostCheck {
		t.Errorf("guardrail config = %+v", cfg.Guardrail)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("retrieval config = %+v", cfg.Retrieval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "llm:\n  provider: none\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.RRFK != 60 {
		t.Errorf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.ScoreThreshold != 0.3 {
		t.Errorf("score threshold default = %v", cfg.Retrieval.ScoreThreshold)
	}
	if cfg.Guardrail.Mode != "redact" {
		t.Errorf("guardrail mode default = %q", cfg.Guardrail.Mode)
	}
	if cfg.Cache.EmbedCapacity != 100 {
		t.Errorf("cache default = %+v", cfg.Cache)
	}
	if cfg.Keyword.Index != "chunk_content" {
		t.Errorf("keyword index default = %q", cfg.Keyword.Index)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.RRFK != 60 {
		t.Errorf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.Guardrail.Mode != "redact" {
		t.Errorf("guardrail mode default = %q", cfg.Guardrail.Mode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "openai"
	cfg.LLM.Temperature = 3.5
	cfg.LLM.MaxTokens = -1
	cfg.Guardrail.Mode = "paranoid"
	cfg.Retrieval.ScoreThreshold = 1.5

	warnings := cfg.Validate()
	if len(warnings) != 5 {
		t.Errorf("expected 5 warnings, got %d: %v", len(warnings), warnings)
	}
}

func TestValidate_Clean(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "none"
	cfg.LLM.Temperature = 0.2
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestCryptoConfig_DecodeKey(t *testing.T) {
	key := make([]byte, 32)
	cfg := CryptoConfig{Key: base64.StdEncoding.EncodeToString(key)}
	decoded, err := cfg.DecodeKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 32 {
		t.Errorf("decoded length = %d", len(decoded))
	}

	if _, err := (CryptoConfig{}).DecodeKey(); err == nil {
		t.Error("empty key must error")
	}
	if _, err := (CryptoConfig{Key: "!!!"}).DecodeKey(); err == nil {
		t.Error("bad base64 must error")
	}
}
