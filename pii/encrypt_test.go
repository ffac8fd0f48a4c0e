package pii

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/curve/pii/kms"
)

func TestEncryptDecrypt_StaticKeyRoundTrips(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	provider, err := kms.NewStaticProvider(key)
	require.NoError(t, err)

	ciphertext, err := Encrypt(context.Background(), provider, "super secret value")
	require.NoError(t, err)
	assert.NotEqual(t, "super secret value", ciphertext)

	plaintext, err := Decrypt(context.Background(), provider, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "super secret value", plaintext)
}

func TestEncrypt_EmptyPassesThrough(t *testing.T) {
	key := make([]byte, 32)
	provider, err := kms.NewStaticProvider(key)
	require.NoError(t, err)

	got, err := Encrypt(context.Background(), provider, "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestEncrypt_NilProviderErrors(t *testing.T) {
	_, err := Encrypt(context.Background(), nil, "value")
	assert.Error(t, err)
}

func TestEncrypt_NondeterministicAcrossCalls(t *testing.T) {
	key := make([]byte, 32)
	provider, err := kms.NewStaticProvider(key)
	require.NoError(t, err)

	a, err := Encrypt(context.Background(), provider, "value")
	require.NoError(t, err)
	b, err := Encrypt(context.Background(), provider, "value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random IV must make each call's ciphertext distinct")
}

type fakeEnvelopeProvider struct {
	dek []byte
}

func (f *fakeEnvelopeProvider) SupportsEnvelope() bool { return true }
func (f *fakeEnvelopeProvider) StaticKey() ([]byte, error) {
	return nil, assert.AnError
}
func (f *fakeEnvelopeProvider) GenerateDataKey(ctx context.Context) ([]byte, []byte, error) {
	return f.dek, []byte("wrapped-dek-marker"), nil
}
func (f *fakeEnvelopeProvider) DecryptDataKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	if string(encrypted) != "wrapped-dek-marker" {
		return nil, assert.AnError
	}
	return f.dek, nil
}

func TestEncryptDecrypt_EnvelopeRoundTrips(t *testing.T) {
	dek := make([]byte, 32)
	for i := range dek {
		dek[i] = byte(255 - i)
	}
	provider := &fakeEnvelopeProvider{dek: dek}

	ciphertext, err := Encrypt(context.Background(), provider, "payload value")
	require.NoError(t, err)

	plaintext, err := Decrypt(context.Background(), provider, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "payload value", plaintext)
}
