package credential

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development. It
// also carries the administrative operations (Save, Activate) so the
// one-active-per-scope invariant can be exercised without a database.
type MemoryStore struct {
	mu    sync.Mutex
	creds []*Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save adds a credential.
func (s *MemoryStore) Save(c *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = append(s.creds, c)
}

// Activate marks the credential active and deactivates every sibling in the
// same (provider, scope): exactly one credential may be active per scope.
func (s *MemoryStore) Activate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *Credential
	for _, c := range s.creds {
		if c.ID == id {
			target = c
			break
		}
	}
	if target == nil {
		return fmt.Errorf("credential %s not found", id)
	}

	for _, c := range s.creds {
		if c.Provider == target.Provider && c.ScopeID == target.ScopeID {
			c.IsActive = false
		}
	}
	target.IsActive = true
	return nil
}

// FindActive implements Store.
func (s *MemoryStore) FindActive(_ context.Context, provider, scopeID string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.Provider == provider && c.ScopeID == scopeID && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

// IncrementUsage implements Store. The increment happens under the store
// lock, equivalent to an atomic increment in a real database.
func (s *MemoryStore) IncrementUsage(_ context.Context, provider, scopeID string, tokens, costCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.Provider == provider && c.ScopeID == scopeID && c.IsActive {
			c.Usage.TotalTokens += tokens
			c.Usage.TotalCostCents += costCents
			return nil
		}
	}
	return fmt.Errorf("no active credential for %s/%s", provider, scopeID)
}

// Get returns the credential by id, for assertions in tests.
func (s *MemoryStore) Get(id string) *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
