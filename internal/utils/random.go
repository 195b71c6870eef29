package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// opaqueTokenBytes gives 256 bits of entropy for one-shot and CSRF tokens
const opaqueTokenBytes = 32

// GenerateRandomString returns byteLength random bytes, URL-safe base64 encoded
func GenerateRandomString(byteLength int) (string, error) {
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateOpaqueToken returns a token suitable for reset links, oauth state and CSRF
func GenerateOpaqueToken() (string, error) {
	return GenerateRandomString(opaqueTokenBytes)
}
