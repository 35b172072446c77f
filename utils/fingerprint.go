package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// RequestFingerprint identifies a request body for idempotency-key reuse detection.
func RequestFingerprint(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
