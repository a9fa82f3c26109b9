package signature

import "crypto/hmac"

// Verify reports whether sig matches the signature of payload under secret.
func (s *Signer) Verify(payload []byte, secret, sig string) bool {
	return Verify(payload, secret, sig)
}

// Verify reports whether sig matches the signature of payload under secret.
// The comparison runs in constant time.
func Verify(payload []byte, secret, sig string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
