// Package secrets resolves key material from pluggable backends: environment
// variables, a local JSON file for development, or HashiCorp Vault. Values
// resolved once are cached for the process lifetime; rotation requires a
// restart or an explicit cache clear.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret keys.
const (
	KeyCredentialAES = "credential_key" // base64 AES-256 key for stored credentials
	KeyLLMAPIKey     = "llm_api_key"    // dev-mode platform API key
	KeyKeywordPass   = "keyword_password"
	KeyVectorAPIKey  = "vector_api_key"
)

// Provider is a secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	// Provider is one of "env", "file", "vault". Empty means "env".
	Provider string
	Vault    *VaultConfig
	File     *FileConfig
	// EnvPrefix for environment lookups (default "SAGE_").
	EnvPrefix string
}

// Manager resolves secrets through a primary backend with environment
// fallback.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager builds a manager for the configured backend.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var primary Provider
	var err error
	switch cfg.Provider {
	case "vault":
		primary, err = NewVaultProvider(cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("create vault provider: %w", err)
		}
	case "file":
		primary, err = NewFileProvider(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
	case "env", "":
		primary = NewEnvProvider(cfg.EnvPrefix)
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}

	return &Manager{
		primary:  primary,
		fallback: NewEnvProvider(cfg.EnvPrefix),
		cache:    make(map[string]string),
	}, nil
}

// Get resolves a secret, trying the primary backend then the environment.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	if val, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return val, nil
	}
	m.mu.RUnlock()

	for _, p := range []Provider{m.primary, m.fallback} {
		val, err := p.Get(ctx, key)
		if err == nil && val != "" {
			m.mu.Lock()
			m.cache[key] = val
			m.mu.Unlock()
			return val, nil
		}
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

// GetOrDefault resolves a secret, returning def when absent.
func (m *Manager) GetOrDefault(ctx context.Context, key, def string) string {
	val, err := m.Get(ctx, key)
	if err != nil || val == "" {
		return def
	}
	return val
}

// Set writes a secret through the primary backend.
func (m *Manager) Set(ctx context.Context, key, value string) error {
	if err := m.primary.Set(ctx, key, value); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[key] = value
	m.mu.Unlock()
	return nil
}

// Delete removes a secret from the primary backend.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.primary.Delete(ctx, key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	return nil
}

// ClearCache drops cached values so the next Get re-resolves. Called after a
// rotation.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]string)
	m.mu.Unlock()
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "SAGE_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", envKey)
}

func (p *EnvProvider) Set(_ context.Context, key, value string) error {
	return os.Setenv(p.prefix+strings.ToUpper(key), value)
}

func (p *EnvProvider) Delete(_ context.Context, key string) error {
	return os.Unsetenv(p.prefix + strings.ToUpper(key))
}
