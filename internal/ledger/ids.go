package ledger

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	codeBytes  = 3  // 6 hex chars, typed by users in chat commands
	tokenBytes = 16 // 128-bit bearer credential
)

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic("ledger: reading random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// NewTransactionCode returns a short user-facing transaction code.
// Collisions are statistically improbable and not checked.
func NewTransactionCode() string {
	return randomHex(codeBytes)
}

// NewVaultToken returns a fresh 128-bit bearer token encoded as hex.
func NewVaultToken() string {
	return randomHex(tokenBytes)
}
