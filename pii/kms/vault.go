package kms

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

// vaultKeyIDPattern guards the operator-supplied key id against path
// traversal, mirroring config.vaultKeyIDPattern so the check is enforced
// at both the config-validation boundary and here, where the literal path
// is built.
var vaultKeyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	defaultDEKCacheTTL  = 5 * time.Minute
	defaultDEKCacheSize = 1024
)

// VaultProvider implements pii.KeyProvider using HashiCorp Vault's
// Transit secrets engine for envelope encryption, grounded on the same
// github.com/hashicorp/vault/api client the pack's
// packages/go-core/config/vault.go wires for secret reads.
type VaultProvider struct {
	client *vaultapi.Client
	keyID  string
	cache  *dekCache
}

// NewVaultProvider constructs a provider against a running Vault agent at
// addr, authenticated with token, wrapping Transit key keyID.
func NewVaultProvider(addr, token, keyID string) (*VaultProvider, error) {
	if !vaultKeyIDPattern.MatchString(keyID) {
		return nil, fmt.Errorf("kms: vault key id %q must match [A-Za-z0-9_-]+", keyID)
	}
	cfg := vaultapi.DefaultConfig()
	cfg.Address = addr
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("kms: vault client init: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{
		client: client,
		keyID:  keyID,
		cache:  newDEKCache(defaultDEKCacheTTL, defaultDEKCacheSize),
	}, nil
}

func (p *VaultProvider) SupportsEnvelope() bool { return true }

func (p *VaultProvider) StaticKey() ([]byte, error) {
	return nil, fmt.Errorf("kms: vault provider only supports envelope encryption")
}

// GenerateDataKey asks Transit for a fresh data key: Vault returns both
// the plaintext and the key wrapped under the named Transit key, giving
// the (plaintext_dek, encrypted_dek) pair callers need to seal a payload
// and later recover the key that sealed it.
func (p *VaultProvider) GenerateDataKey(ctx context.Context) ([]byte, []byte, error) {
	path := fmt.Sprintf("transit/datakey/plaintext/%s", p.keyID)
	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("kms: vault generate data key: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil, fmt.Errorf("kms: vault returned no data for %s", path)
	}
	plaintextB64, _ := secret.Data["plaintext"].(string)
	ciphertext, _ := secret.Data["ciphertext"].(string)
	if plaintextB64 == "" || ciphertext == "" {
		return nil, nil, fmt.Errorf("kms: vault datakey response missing plaintext/ciphertext")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, nil, fmt.Errorf("kms: decode vault plaintext data key: %w", err)
	}
	return plaintext, []byte(ciphertext), nil
}

// DecryptDataKey unwraps a previously generated data key via Transit's
// decrypt endpoint, consulting the DEK cache first.
func (p *VaultProvider) DecryptDataKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	cacheKey := string(encrypted)
	now := time.Now()
	if pt, ok := p.cache.get(cacheKey, now); ok {
		return pt, nil
	}

	path := fmt.Sprintf("transit/decrypt/%s", p.keyID)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"ciphertext": string(encrypted),
	})
	if err != nil {
		return nil, fmt.Errorf("kms: vault decrypt data key: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("kms: vault returned no data for %s", path)
	}
	plaintextB64, _ := secret.Data["plaintext"].(string)
	if plaintextB64 == "" {
		return nil, fmt.Errorf("kms: vault decrypt response missing plaintext")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("kms: decode vault decrypted data key: %w", err)
	}
	p.cache.put(cacheKey, plaintext, now)
	return plaintext, nil
}

// InvalidateCache atomically clears the DEK cache, used by callers
// reacting to a Transit key rotation event.
func (p *VaultProvider) InvalidateCache() { p.cache.invalidate() }
