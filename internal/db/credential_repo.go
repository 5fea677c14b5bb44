package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"billgate/internal/types"
)

// CredentialRepository resolves per-tenant payment gateway credentials.
// Merchant key and passphrase are stored encrypted; rows are decrypted on
// read with the configured Cipher.
//
// A fallback credential set (from configuration) covers single-merchant
// deployments that have no per-tenant rows: when no row matches the claimed
// merchant id but the fallback does, the fallback is returned.
type CredentialRepository struct {
	db       DBTX
	cipher   *Cipher
	fallback types.MerchantCredentials
}

// NewCredentialRepository creates a CredentialRepository. The fallback may be
// the zero value to disable environment-configured credentials.
func NewCredentialRepository(db DBTX, cipher *Cipher, fallback types.MerchantCredentials) *CredentialRepository {
	return &CredentialRepository{db: db, cipher: cipher, fallback: fallback}
}

// ByMerchantID loads and decrypts the credentials registered for the given
// gateway merchant id.
func (r *CredentialRepository) ByMerchantID(ctx context.Context, merchantID string) (types.MerchantCredentials, error) {
	var (
		creds         types.MerchantCredentials
		encKey        string
		encPassphrase *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, merchant_id, merchant_key_enc, passphrase_enc, sandbox
		 FROM merchant_credentials
		 WHERE merchant_id = $1`,
		merchantID,
	).Scan(&creds.TenantID, &creds.MerchantID, &encKey, &encPassphrase, &creds.Sandbox)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if r.fallback.MerchantID != "" && r.fallback.MerchantID == merchantID {
				return r.fallback, nil
			}
			return types.MerchantCredentials{}, types.NewAppError(
				types.ErrCodeNotFoundCredentials, "no credentials for merchant", err)
		}
		return types.MerchantCredentials{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to load merchant credentials", err)
	}

	key, err := r.cipher.Decrypt(encKey)
	if err != nil {
		return types.MerchantCredentials{}, err
	}
	creds.MerchantKey = types.SecretString(key)

	if encPassphrase != nil && *encPassphrase != "" {
		pass, err := r.cipher.Decrypt(*encPassphrase)
		if err != nil {
			return types.MerchantCredentials{}, err
		}
		creds.Passphrase = types.SecretString(pass)
	}

	return creds, nil
}

// Store encrypts and upserts credentials for a tenant. Used by provisioning
// tooling, not by the notification path.
func (r *CredentialRepository) Store(ctx context.Context, creds types.MerchantCredentials) error {
	encKey, err := r.cipher.Encrypt(creds.MerchantKey.Unmask())
	if err != nil {
		return err
	}

	var encPassphrase *string
	if creds.HasPassphrase() {
		enc, err := r.cipher.Encrypt(creds.Passphrase.Unmask())
		if err != nil {
			return err
		}
		encPassphrase = &enc
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO merchant_credentials (tenant_id, merchant_id, merchant_key_enc, passphrase_enc, sandbox, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (tenant_id)
		 DO UPDATE SET merchant_id = EXCLUDED.merchant_id,
		               merchant_key_enc = EXCLUDED.merchant_key_enc,
		               passphrase_enc = EXCLUDED.passphrase_enc,
		               sandbox = EXCLUDED.sandbox,
		               updated_at = NOW()`,
		creds.TenantID, creds.MerchantID, encKey, encPassphrase, creds.Sandbox,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store merchant credentials", err)
	}
	return nil
}
