package pii

import "context"

// KeyProvider is the external collaborator that owns key material for
// ENCRYPT fields. A static provider returns a fixed 32-byte key; an
// envelope-encryption provider additionally supports per-operation data
// keys wrapped by a KMS.
type KeyProvider interface {
	// SupportsEnvelope reports whether GenerateDataKey/DecryptDataKey are
	// usable. When false, StaticKey is used for every ENCRYPT field.
	SupportsEnvelope() bool

	// StaticKey returns a fixed 32-byte AES-256 key. Required when
	// SupportsEnvelope() is false.
	StaticKey() ([]byte, error)

	// GenerateDataKey returns a fresh (plaintext, encrypted) data-key pair
	// for one ENCRYPT operation.
	GenerateDataKey(ctx context.Context) (plaintext, encrypted []byte, err error)

	// DecryptDataKey unwraps an encrypted data key previously produced by
	// GenerateDataKey, consulting the DEK cache first.
	DecryptDataKey(ctx context.Context, encrypted []byte) (plaintext []byte, err error)
}
