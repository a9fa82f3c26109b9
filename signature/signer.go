// Package signature signs and verifies webhook payloads with HMAC-SHA256.
//
// The tag covers the exact request body bytes, so callers must serialize once
// and reuse the same slice for signing and transmission.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Prefix is prepended to every hex digest.
const Prefix = "sha256="

// Signer computes webhook signatures.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign returns "sha256=<hex>" for payload keyed by secret.
func (s *Signer) Sign(payload []byte, secret string) string {
	return Sign(payload, secret)
}

// Sign returns "sha256=<hex>" for payload keyed by secret. The secret is used
// as raw bytes.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}
