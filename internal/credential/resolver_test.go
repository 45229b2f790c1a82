package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/selimacar/sage/internal/llm"
)

type nullProvider struct{ name string }

func (p *nullProvider) Name() string { return p.name }
func (p *nullProvider) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return nil, nil
}
func (p *nullProvider) GenerateResponse(context.Context, string, string, []llm.Message, *llm.RequestOptions) (*llm.Response, error) {
	return &llm.Response{Content: "ok"}, nil
}
func (p *nullProvider) GenerateTags(context.Context, string) ([]string, error) { return nil, nil }

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestResolver(t *testing.T, store Store) (*Resolver, *Decryptor, *int) {
	t.Helper()
	dec, err := NewDecryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}
	constructions := 0
	factory := llm.NewFactory()
	factory.Register("openai", func(cfg llm.Config) (llm.Provider, error) {
		constructions++
		return &nullProvider{name: "openai"}, nil
	})
	return NewResolver(store, dec, factory, nil), dec, &constructions
}

func sealed(t *testing.T, dec *Decryptor, plaintext string) string {
	t.Helper()
	enc, err := dec.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

func TestResolve_TenantBeforePlatform(t *testing.T) {
	store := NewMemoryStore()
	store.Save(&Credential{ID: "plat", Provider: "openai", Scope: ScopePlatform, IsActive: true})
	store.Save(&Credential{ID: "ten", Provider: "openai", Scope: ScopeTenant, ScopeID: "org-1", IsActive: true})
	r, _, _ := newTestResolver(t, store)

	cred, err := r.Resolve(context.Background(), "openai", "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.ID != "ten" {
		t.Errorf("expected tenant credential, got %s", cred.ID)
	}
}

func TestResolve_PlatformFallback(t *testing.T) {
	store := NewMemoryStore()
	store.Save(&Credential{ID: "plat", Provider: "openai", Scope: ScopePlatform, IsActive: true})
	r, _, _ := newTestResolver(t, store)

	cred, err := r.Resolve(context.Background(), "openai", "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.ID != "plat" {
		t.Errorf("expected platform fallback, got %s", cred.ID)
	}
}

func TestResolve_NotConfigured(t *testing.T) {
	r, _, _ := newTestResolver(t, NewMemoryStore())

	_, err := r.Resolve(context.Background(), "openai", "org-1")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestResolve_ExpiredIsDistinct(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	store := NewMemoryStore()
	store.Save(&Credential{ID: "old", Provider: "openai", Scope: ScopePlatform, IsActive: true, ExpiresAt: &past})
	r, _, _ := newTestResolver(t, store)

	_, err := r.Resolve(context.Background(), "openai", "")
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrNotConfigured) {
		t.Error("expired must not read as not-configured")
	}
}

func TestActivate_MutualExclusivity(t *testing.T) {
	store := NewMemoryStore()
	store.Save(&Credential{ID: "a", Provider: "openai", Scope: ScopeTenant, ScopeID: "org-1", IsActive: true})
	store.Save(&Credential{ID: "b", Provider: "openai", Scope: ScopeTenant, ScopeID: "org-1"})

	if err := store.Activate("b"); err != nil {
		t.Fatal(err)
	}
	if store.Get("a").IsActive {
		t.Error("activating b must deactivate sibling a")
	}
	if !store.Get("b").IsActive {
		t.Error("b should be active")
	}

	// Different scope is untouched.
	store.Save(&Credential{ID: "c", Provider: "openai", Scope: ScopeTenant, ScopeID: "org-2", IsActive: true})
	if err := store.Activate("b"); err != nil {
		t.Fatal(err)
	}
	if !store.Get("c").IsActive {
		t.Error("activation must not touch other scopes")
	}
}

func TestProviderFor_RateLimitPreflight(t *testing.T) {
	store := NewMemoryStore()
	r, dec, constructions := newTestResolver(t, store)
	store.Save(&Credential{
		ID: "p", Provider: "openai", Scope: ScopePlatform, IsActive: true,
		EncryptedKey: sealed(t, dec, "sk-test"),
		RateLimit:    RateLimit{TokensPerDay: 1000},
		Usage:        Usage{TotalTokens: 990},
	})

	_, _, err := r.ProviderFor(context.Background(), "openai", "", 50)
	if !llm.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if *constructions != 0 {
		t.Error("rate-limited request must fail before any provider is built")
	}

	// Under budget passes.
	if _, _, err := r.ProviderFor(context.Background(), "openai", "", 5); err != nil {
		t.Errorf("unexpected error under budget: %v", err)
	}
}

func TestProviderFor_CachesWithTTL(t *testing.T) {
	store := NewMemoryStore()
	r, dec, constructions := newTestResolver(t, store)
	store.Save(&Credential{
		ID: "p", Provider: "openai", Scope: ScopePlatform, IsActive: true,
		EncryptedKey: sealed(t, dec, "sk-test"),
	})

	clock := time.Now()
	r.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := r.ProviderFor(ctx, "openai", "", 10); err != nil {
			t.Fatal(err)
		}
	}
	if *constructions != 1 {
		t.Errorf("expected 1 construction within TTL, got %d", *constructions)
	}

	// Past TTL the entry is lazily evicted and rebuilt.
	clock = clock.Add(DefaultProviderTTL + time.Second)
	if _, _, err := r.ProviderFor(ctx, "openai", "", 10); err != nil {
		t.Fatal(err)
	}
	if *constructions != 2 {
		t.Errorf("expected rebuild after TTL, got %d constructions", *constructions)
	}
}

func TestProviderFor_DecryptionFailure(t *testing.T) {
	store := NewMemoryStore()
	r, _, _ := newTestResolver(t, store)
	store.Save(&Credential{
		ID: "p", Provider: "openai", Scope: ScopePlatform, IsActive: true,
		EncryptedKey: "not-even-base64!!!",
	})

	_, _, err := r.ProviderFor(context.Background(), "openai", "", 10)
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption, got %v", err)
	}
}

func TestTrackUsage_Increments(t *testing.T) {
	store := NewMemoryStore()
	store.Save(&Credential{ID: "p", Provider: "openai", Scope: ScopePlatform, IsActive: true})
	r, _, _ := newTestResolver(t, store)

	r.TrackUsage("openai", "", 120, 3)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if store.Get("p").Usage.TotalTokens == 120 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("usage increment never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if store.Get("p").Usage.TotalCostCents != 3 {
		t.Errorf("expected cost tracked, got %d", store.Get("p").Usage.TotalCostCents)
	}
}

func TestTrackUsage_FailureSwallowed(t *testing.T) {
	// No active credential: IncrementUsage errors, TrackUsage must not panic
	// or surface anything.
	r, _, _ := newTestResolver(t, NewMemoryStore())
	r.TrackUsage("openai", "", 10, 0)
	time.Sleep(20 * time.Millisecond)
}

func TestDecryptor_RoundTrip(t *testing.T) {
	dec, err := NewDecryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}

	enc, err := dec.Encrypt("sk-secret-key")
	if err != nil {
		t.Fatal(err)
	}
	got, err := dec.Decrypt(enc)
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-secret-key" {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestDecryptor_WrongKey(t *testing.T) {
	dec1, _ := NewDecryptor(testKey())
	other := testKey()
	other[0] ^= 0xff
	dec2, _ := NewDecryptor(other)

	enc, _ := dec1.Encrypt("sk-secret")
	if _, err := dec2.Decrypt(enc); !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption with wrong key, got %v", err)
	}
}

func TestNewDecryptor_BadKeySize(t *testing.T) {
	if _, err := NewDecryptor([]byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestCredential_IsRateLimited(t *testing.T) {
	c := &Credential{RateLimit: RateLimit{TokensPerDay: 100}, Usage: Usage{TotalTokens: 90}}
	if c.IsRateLimited(10) {
		t.Error("exactly at budget should pass")
	}
	if !c.IsRateLimited(11) {
		t.Error("over budget should be limited")
	}
	unlimited := &Credential{Usage: Usage{TotalTokens: 1 << 40}}
	if unlimited.IsRateLimited(1 << 40) {
		t.Error("zero budget means unlimited")
	}
}
