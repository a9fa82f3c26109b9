package signature

import (
	"crypto/rand"
	"encoding/base64"
)

// SecretBytes is the entropy of a generated secret.
const SecretBytes = 32

// GenerateSecret returns a random secret: SecretBytes of crypto/rand output,
// unpadded base64url encoded (43 characters). It fits the webhook secret
// length bounds and is safe in headers and URLs.
func GenerateSecret() string {
	b := make([]byte, SecretBytes)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
