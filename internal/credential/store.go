package credential

import "context"

// Store is the external credential persistence interface. The encrypted
// credential store itself (database, KMS-backed table) is an external
// collaborator; this core only reads and increments usage.
type Store interface {
	// FindActive returns the active credential for provider within the given
	// scope (scopeID empty = platform scope), or (nil, nil) when none exists.
	FindActive(ctx context.Context, provider, scopeID string) (*Credential, error)

	// IncrementUsage atomically adds token and cost consumption to the
	// active credential for (provider, scopeID).
	IncrementUsage(ctx context.Context, provider, scopeID string, tokens, costCents int64) error
}
