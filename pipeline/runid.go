package pipeline

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RunIDLength is the number of random bytes behind a run identifier.
// 8 bytes encode to an 11-character URL-safe token, which keeps collisions
// across separate runs overwhelmingly unlikely.
const RunIDLength = 8

// NewRunID generates a random, URL-safe run identifier.
// Each call independently samples fresh bytes from crypto/rand; there is no
// process-wide counter or other shared state.
func NewRunID() (string, error) {
	buf := make([]byte, RunIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}
