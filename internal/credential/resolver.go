package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/selimacar/sage/internal/llm"
)

// DefaultProviderTTL is how long a constructed provider instance is reused
// before the credential is re-resolved and the key re-decrypted.
const DefaultProviderTTL = 5 * time.Minute

// Resolver resolves credentials and turns them into ready-to-use provider
// instances. Instances are cached per (provider, tenant) with a TTL; entries
// are evicted lazily on the next access past expiry, not proactively.
type Resolver struct {
	store     Store
	decryptor *Decryptor
	factory   *llm.Factory
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	provider llm.Provider
	cred     *Credential
	expires  time.Time
}

// NewResolver creates a resolver. logger may be nil.
func NewResolver(store Store, decryptor *Decryptor, factory *llm.Factory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:     store,
		decryptor: decryptor,
		factory:   factory,
		ttl:       DefaultProviderTTL,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]*cacheEntry),
	}
}

// Resolve returns the active credential for (provider, tenantID): the
// tenant-scoped credential when one is active, otherwise the platform-scoped
// one. An expired credential fails resolution with ErrExpired, distinct from
// ErrNotConfigured so operators rotate rather than create.
func (r *Resolver) Resolve(ctx context.Context, provider, tenantID string) (*Credential, error) {
	var cred *Credential

	if tenantID != "" {
		c, err := r.store.FindActive(ctx, provider, tenantID)
		if err != nil {
			return nil, fmt.Errorf("find tenant credential: %w", err)
		}
		cred = c
	}
	if cred == nil {
		c, err := r.store.FindActive(ctx, provider, "")
		if err != nil {
			return nil, fmt.Errorf("find platform credential: %w", err)
		}
		cred = c
	}
	if cred == nil {
		return nil, &NotConfiguredError{Provider: provider, TenantID: tenantID}
	}
	if cred.IsExpired(r.now()) {
		return nil, &ExpiredError{Provider: provider, CredentialID: cred.ID}
	}
	return cred, nil
}

// ProviderFor resolves a credential and returns a constructed provider for
// it, reusing a cached instance within the TTL. The daily-budget check runs
// before any provider call is attempted, so an exhausted credential fails
// fast and spends nothing.
func (r *Resolver) ProviderFor(ctx context.Context, provider, tenantID string, estimatedTokens int64) (llm.Provider, *Credential, error) {
	key := provider + "/" + tenantID

	r.mu.Lock()
	if e, ok := r.cache[key]; ok {
		if r.now().Before(e.expires) {
			r.mu.Unlock()
			if e.cred.IsRateLimited(estimatedTokens) {
				return nil, nil, r.rateLimitErr(provider)
			}
			return e.provider, e.cred, nil
		}
		delete(r.cache, key)
	}
	r.mu.Unlock()

	cred, err := r.Resolve(ctx, provider, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if cred.IsRateLimited(estimatedTokens) {
		return nil, nil, r.rateLimitErr(provider)
	}

	apiKey, err := r.decryptor.Decrypt(cred.EncryptedKey)
	if err != nil {
		r.logger.Error("credential decryption failed",
			"provider", provider, "credential_id", cred.ID, "error", err)
		return nil, nil, err
	}

	p, err := r.factory.Create(llm.Config{
		Provider:   cred.Provider,
		APIKey:     apiKey,
		Model:      cred.Model,
		BaseURL:    cred.BaseURL,
		EmbedModel: cred.EmbedModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("construct provider %q: %w", provider, err)
	}

	r.mu.Lock()
	r.cache[key] = &cacheEntry{provider: p, cred: cred, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return p, cred, nil
}

// TrackUsage records token and cost consumption against the credential,
// fire-and-forget relative to the response path: a tracking failure is
// logged and swallowed, never propagated.
func (r *Resolver) TrackUsage(provider, tenantID string, tokens, costCents int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.store.IncrementUsage(ctx, provider, tenantID, tokens, costCents); err != nil {
			r.logger.Warn("usage tracking failed",
				"provider", provider, "tenant", tenantID, "tokens", tokens, "error", err)
		}
	}()
}

// InvalidateCache drops all cached provider instances. Called after a
// credential rotation so the next request re-resolves.
func (r *Resolver) InvalidateCache() {
	r.mu.Lock()
	r.cache = make(map[string]*cacheEntry)
	r.mu.Unlock()
}

func (r *Resolver) rateLimitErr(provider string) error {
	return &llm.RateLimitError{
		Provider:   provider,
		RetryAfter: DefaultDailyBudgetRetryAfter,
		Message:    "daily token budget exceeded",
	}
}

// DefaultDailyBudgetRetryAfter is the retry hint for a spent daily budget.
// Budgets reset daily; retrying sooner cannot succeed.
const DefaultDailyBudgetRetryAfter = time.Hour
