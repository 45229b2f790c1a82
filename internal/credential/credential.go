// Package credential resolves active API credentials for (provider, tenant)
// pairs, with platform-level fallback, expiry and daily-budget checks, key
// decryption and a TTL cache of constructed provider instances. Credentials
// are created and rotated by administrators; this package only reads them.
package credential

import "time"

// Scope says whether a credential belongs to the shared platform or to a
// specific tenant organization. Tenant scope takes precedence when present.
type Scope string

const (
	ScopePlatform Scope = "platform"
	ScopeTenant   Scope = "tenant"
)

// RateLimit caps daily token spend for a credential. Zero means unlimited.
type RateLimit struct {
	TokensPerDay int64 `json:"tokens_per_day"`
}

// Usage accumulates consumption against a credential. Incremented atomically
// at the store, never read-modify-write in process memory: multiple
// concurrent requests may share one credential.
type Usage struct {
	TotalTokens    int64 `json:"total_tokens"`
	TotalCostCents int64 `json:"total_cost_cents"`
}

// Credential is an API key record for one language-model provider. Exactly
// one credential may be active per (provider, scope) at a time.
type Credential struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	Scope        Scope      `json:"scope"`
	ScopeID      string     `json:"scope_id"` // tenant id; empty for platform scope
	EncryptedKey string     `json:"encrypted_key"`
	Model        string     `json:"model,omitempty"`
	BaseURL      string     `json:"base_url,omitempty"`
	EmbedModel   string     `json:"embed_model,omitempty"`
	IsActive     bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RateLimit    RateLimit  `json:"rate_limit"`
	Usage        Usage      `json:"usage"`
}

// IsExpired reports whether the credential has an expiry in the past.
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// IsRateLimited reports whether spending estimatedTokens more would exceed
// the daily budget. Checked before any provider call is attempted.
func (c *Credential) IsRateLimited(estimatedTokens int64) bool {
	if c.RateLimit.TokensPerDay <= 0 {
		return false
	}
	return c.Usage.TotalTokens+estimatedTokens > c.RateLimit.TokensPerDay
}
