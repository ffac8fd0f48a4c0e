package pii

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"github.com/baechuer/curve/logger"
)

// defaultSalt is the process-default HMAC key used when no salt is
// configured. It is intentionally fixed and public — it exists only so
// HASH never silently falls back to an unkeyed digest, not to provide
// real secrecy.
const defaultSalt = "curve-default-hash-salt-do-not-use-in-production"

var warnOnce sync.Once

// Hash computes HMAC-SHA256(salt, value), Base64-encoded. Deterministic
// for a fixed salt; empty input passes through.
func Hash(salt, value string) string {
	if value == "" {
		return value
	}
	if salt == "" {
		warnOnce.Do(func() {
			logger.Logger.Warn().Msg("pii: HASH strategy in use with no configured salt; falling back to an insecure process default")
		})
		salt = defaultSalt
	}
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(value))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
