// Package kms provides pii.KeyProvider implementations: a static provider
// for a single long-lived key, and envelope-encryption providers backed by
// HashiCorp Vault and AWS KMS.
package kms

import (
	"context"
	"fmt"
)

// StaticProvider returns a single fixed 32-byte key and never supports
// envelope encryption. This is the provider used when pii.kms.enabled is
// false.
type StaticProvider struct {
	key []byte
}

// NewStaticProvider validates key is exactly 32 bytes at construction;
// shorter keys are rejected at startup rather than at first use.
func NewStaticProvider(key []byte) (*StaticProvider, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("kms: static key must be exactly 32 bytes, got %d", len(key))
	}
	cp := make([]byte, 32)
	copy(cp, key)
	return &StaticProvider{key: cp}, nil
}

func (s *StaticProvider) SupportsEnvelope() bool { return false }

func (s *StaticProvider) StaticKey() ([]byte, error) {
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, nil
}

func (s *StaticProvider) GenerateDataKey(context.Context) ([]byte, []byte, error) {
	return nil, nil, fmt.Errorf("kms: static provider does not support envelope encryption")
}

func (s *StaticProvider) DecryptDataKey(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("kms: static provider does not support envelope encryption")
}
