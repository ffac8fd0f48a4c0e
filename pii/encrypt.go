package pii

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const (
	gcmIVSize  = 12
	gcmTagSize = 16
)

// Encrypt applies AES-256-GCM to value using provider's key material. With
// a static key: 12-byte random IV ‖ ciphertext ‖ 16-byte tag,
// Base64-encoded. With an envelope-encryption provider, a length-prefixed
// encrypted data key is prepended before the IV/ciphertext/tag, so
// decryption can recover which DEK to unwrap without an external index.
func Encrypt(ctx context.Context, provider KeyProvider, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if provider == nil {
		return "", fmt.Errorf("pii: ENCRYPT requires a key provider")
	}

	if provider.SupportsEnvelope() {
		return encryptEnvelope(ctx, provider, value)
	}
	key, err := provider.StaticKey()
	if err != nil {
		return "", fmt.Errorf("pii: static key unavailable: %w", err)
	}
	if len(key) != 32 {
		return "", fmt.Errorf("pii: static key must be exactly 32 bytes, got %d", len(key))
	}
	iv, ciphertext, err := gcmSeal(key, []byte(value))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

func encryptEnvelope(ctx context.Context, provider KeyProvider, value string) (string, error) {
	plaintextDEK, encryptedDEK, err := provider.GenerateDataKey(ctx)
	if err != nil {
		return "", fmt.Errorf("pii: generate data key: %w", err)
	}
	if len(plaintextDEK) != 32 {
		return "", fmt.Errorf("pii: data key must be exactly 32 bytes, got %d", len(plaintextDEK))
	}
	if len(encryptedDEK) > 1<<16-1 {
		return "", fmt.Errorf("pii: encrypted data key too large to length-prefix (%d bytes)", len(encryptedDEK))
	}

	iv, ciphertext, err := gcmSeal(plaintextDEK, []byte(value))
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, 2+len(encryptedDEK)+len(iv)+len(ciphertext))
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(encryptedDEK)))
	out = append(out, lenPrefix[:]...)
	out = append(out, encryptedDEK...)
	out = append(out, iv...)
	out = append(out, ciphertext...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. It is not invoked by the core delivery path,
// but is provided so a consumer-side or test harness can recover
// plaintext given the same KeyProvider.
func Decrypt(ctx context.Context, provider KeyProvider, encoded string) (string, error) {
	if encoded == "" {
		return encoded, nil
	}
	if provider == nil {
		return "", fmt.Errorf("pii: decrypt requires a key provider")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("pii: invalid base64 ciphertext: %w", err)
	}

	if !provider.SupportsEnvelope() {
		key, err := provider.StaticKey()
		if err != nil {
			return "", fmt.Errorf("pii: static key unavailable: %w", err)
		}
		return gcmOpenAt(key, raw, 0)
	}

	if len(raw) < 2 {
		return "", fmt.Errorf("pii: envelope ciphertext too short for length prefix")
	}
	dekLen := int(binary.BigEndian.Uint16(raw[:2]))
	if len(raw) < 2+dekLen {
		return "", fmt.Errorf("pii: envelope ciphertext shorter than declared data-key length")
	}
	encryptedDEK := raw[2 : 2+dekLen]

	plaintextDEK, err := provider.DecryptDataKey(ctx, encryptedDEK)
	if err != nil {
		return "", fmt.Errorf("pii: decrypt data key: %w", err)
	}
	return gcmOpenAt(plaintextDEK, raw, 2+dekLen)
}

func gcmSeal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("pii: new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, gcmTagSize)
	if err != nil {
		return nil, nil, fmt.Errorf("pii: new GCM: %w", err)
	}
	iv = make([]byte, gcmIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("pii: generate IV: %w", err)
	}
	ciphertext = gcm.Seal(nil, iv, plaintext, nil)
	return iv, ciphertext, nil
}

func gcmOpenAt(key, raw []byte, tailStart int) (string, error) {
	tail := raw[tailStart:]
	if len(tail) < gcmIVSize {
		return "", fmt.Errorf("pii: IV shorter than %d bytes", gcmIVSize)
	}
	iv := tail[:gcmIVSize]
	ciphertext := tail[gcmIVSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("pii: new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, gcmTagSize)
	if err != nil {
		return "", fmt.Errorf("pii: new GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("pii: GCM open: %w", err)
	}
	return string(plaintext), nil
}
