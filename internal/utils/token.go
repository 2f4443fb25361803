package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewMessageID returns a random 16-character hex token.
func NewMessageID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
