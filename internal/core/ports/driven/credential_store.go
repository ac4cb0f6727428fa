package driven

import (
	"context"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// CredentialStore holds the single live credential record per provider.
// Writes overwrite in place; last writer wins.
type CredentialStore interface {
	// Get returns the credentials for provider.
	// Returns domain.ErrCredentialsUnavailable when the store is unreachable
	// or holds no record.
	Get(ctx context.Context, provider string) (*domain.Credentials, error)

	// Put overwrites the credentials for creds.Provider.
	Put(ctx context.Context, creds *domain.Credentials) error
}
