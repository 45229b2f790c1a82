package credential

import (
	"errors"
	"fmt"
)

// ErrNotConfigured means no active credential is resolvable for the
// (provider, tenant) pair. Client-actionable: an operator must add a key.
var ErrNotConfigured = errors.New("no active credential configured")

// ErrExpired means a credential resolved but is past its expiry. Surfaced
// distinctly from ErrNotConfigured so an operator knows to rotate the
// existing key rather than create a new one.
var ErrExpired = errors.New("credential expired")

// ErrDecryption means the credential payload is unreadable. Indicates key
// material corruption or misconfiguration; logged with high severity.
var ErrDecryption = errors.New("credential decryption failed")

// NotConfiguredError wraps ErrNotConfigured with the lookup that failed.
type NotConfiguredError struct {
	Provider string
	TenantID string
}

func (e *NotConfiguredError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("no active credential for provider %q (tenant %q or platform)", e.Provider, e.TenantID)
	}
	return fmt.Sprintf("no active credential for provider %q (platform)", e.Provider)
}

func (e *NotConfiguredError) Unwrap() error { return ErrNotConfigured }

// ExpiredError wraps ErrExpired with the credential that needs rotating.
type ExpiredError struct {
	Provider     string
	CredentialID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("credential %s for provider %q is expired, rotate it", e.CredentialID, e.Provider)
}

func (e *ExpiredError) Unwrap() error { return ErrExpired }
