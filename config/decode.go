package config

import (
	"encoding/base64"
	"regexp"
)

// vaultKeyIDPattern guards against path traversal in operator-supplied
// Vault key ids.
var vaultKeyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
