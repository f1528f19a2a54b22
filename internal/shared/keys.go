package shared

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands the application master secret into a purpose-bound
// 32-byte key. Session signing and CSRF tokens each get their own
// derivation so rotating one use does not affect the other.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("shared: empty master secret")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("pubdesk/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("shared: derive %s key: %w", purpose, err)
	}
	return key, nil
}
