package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// storedCredentials is the encrypted-at-rest shape. Unlike the domain
// type, the OAuth material is serialized here.
type storedCredentials struct {
	Provider       string     `json:"provider"`
	Cookies        string     `json:"cookies"`
	UserAgent      string     `json:"user_agent"`
	AccessToken    string     `json:"access_token"`
	RefreshToken   string     `json:"refresh_token"`
	UserID         string     `json:"user_id"`
	TokenTimestamp *time.Time `json:"token_timestamp,omitempty"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
	LastRotated    *time.Time `json:"last_rotated,omitempty"`
	RotationCount  int        `json:"rotation_count"`
}

// CredentialStore implements driven.CredentialStore on PostgreSQL with the
// blob encrypted by CredentialCipher. One row per provider, last write wins.
type CredentialStore struct {
	db     *DB
	cipher *CredentialCipher
}

// NewCredentialStore creates a PostgreSQL-backed CredentialStore.
func NewCredentialStore(db *DB, cipher *CredentialCipher) *CredentialStore {
	return &CredentialStore{db: db, cipher: cipher}
}

// Get loads and decrypts the credentials for provider.
func (s *CredentialStore) Get(ctx context.Context, provider string) (*domain.Credentials, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM provider_credentials WHERE provider = $1`, provider,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no credentials for %s: %w", provider, domain.ErrCredentialsUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading credentials: %v", domain.ErrCredentialsUnavailable, err)
	}

	var stored storedCredentials
	if err := s.cipher.Decrypt(blob, &stored); err != nil {
		return nil, fmt.Errorf("%w: decrypting credentials: %v", domain.ErrCredentialsUnavailable, err)
	}

	return &domain.Credentials{
		Provider:       stored.Provider,
		Cookies:        stored.Cookies,
		UserAgent:      stored.UserAgent,
		AccessToken:    stored.AccessToken,
		RefreshToken:   stored.RefreshToken,
		UserID:         stored.UserID,
		TokenTimestamp: stored.TokenTimestamp,
		LastUpdated:    stored.LastUpdated,
		LastRotated:    stored.LastRotated,
		RotationCount:  stored.RotationCount,
	}, nil
}

// Put encrypts and overwrites the credentials for creds.Provider.
func (s *CredentialStore) Put(ctx context.Context, creds *domain.Credentials) error {
	blob, err := s.cipher.Encrypt(storedCredentials{
		Provider:       creds.Provider,
		Cookies:        creds.Cookies,
		UserAgent:      creds.UserAgent,
		AccessToken:    creds.AccessToken,
		RefreshToken:   creds.RefreshToken,
		UserID:         creds.UserID,
		TokenTimestamp: creds.TokenTimestamp,
		LastUpdated:    creds.LastUpdated,
		LastRotated:    creds.LastRotated,
		RotationCount:  creds.RotationCount,
	})
	if err != nil {
		return fmt.Errorf("%w: encrypting credentials: %v", domain.ErrCredentialsUnavailable, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_credentials (provider, blob, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (provider) DO UPDATE SET
			blob = EXCLUDED.blob,
			updated_at = now()
	`, creds.Provider, blob)
	if err != nil {
		return fmt.Errorf("%w: storing credentials: %v", domain.ErrCredentialsUnavailable, err)
	}
	return nil
}
