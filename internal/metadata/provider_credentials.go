package metadata

import (
	"context"
	"time"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/secretvault"
)

// CredentialRepository adapts Store to secretvault.Repository, backing the
// Key Vault's per-tenant ciphertext storage with the provider_credentials
// table.
type CredentialRepository struct {
	store *Store
}

func NewCredentialRepository(store *Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

var _ secretvault.Repository = (*CredentialRepository)(nil)

func (c *CredentialRepository) GetCiphertext(ctx context.Context, tenantID, provider string) ([]byte, error) {
	var ciphertext []byte
	err := c.store.db.GetContext(ctx, &ciphertext, `
		SELECT ciphertext FROM provider_credentials WHERE tenant_id = $1 AND provider = $2
	`, tenantID, provider)
	if isNoRows(err) {
		return nil, secretvault.ErrNotFound
	}
	if err != nil {
		return nil, apperr.DatabaseUnavailable("get_ciphertext", err)
	}
	return ciphertext, nil
}

func (c *CredentialRepository) ListProviders(ctx context.Context, tenantID string) ([]string, error) {
	var providers []string
	err := c.store.db.SelectContext(ctx, &providers, `
		SELECT provider FROM provider_credentials WHERE tenant_id = $1 ORDER BY provider
	`, tenantID)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("list_providers", err)
	}
	return providers, nil
}

func (c *CredentialRepository) PutCiphertext(ctx context.Context, tenantID, provider string, ciphertext []byte) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO provider_credentials (tenant_id, provider, ciphertext, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = EXCLUDED.updated_at
	`, tenantID, provider, ciphertext, time.Now().UTC())
	if err != nil {
		return apperr.DatabaseUnavailable("put_ciphertext", err)
	}
	return nil
}
