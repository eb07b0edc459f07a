package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultTokenBytes yields 256 bits of entropy per token.
const DefaultTokenBytes = 32

// RandomURLToken returns n random bytes encoded with unpadded URL-safe base64.
func RandomURLToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
