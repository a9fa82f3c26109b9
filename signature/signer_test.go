package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/xraph/courier/signature"
)

func TestSignKnownVector(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"event":"issue.created"}`)
	secret := "whsec_testsecret123"

	got := signer.Sign(payload, secret)

	// Compute expected HMAC-SHA256 independently.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"a":1,"b":[true,null]}`)
	a := signature.Sign(payload, "0123456789abcdef")
	b := signature.Sign(payload, "0123456789abcdef")
	if a != b {
		t.Fatalf("Sign() not deterministic: %q vs %q", a, b)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"issue_id":42,"title":"Broken build"}`)
	secret := "whsec_roundtripsecret"

	sig := signer.Sign(payload, secret)
	if !signer.Verify(payload, secret, sig) {
		t.Error("Verify() returned false for valid signature")
	}
}

func TestSignChangesWithSingleByte(t *testing.T) {
	secret := "a-sixteen-char-secret"
	payload := []byte(`{"project":"alpha"}`)
	base := signature.Sign(payload, secret)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if signature.Sign(mutated, secret) == base {
			t.Fatalf("flipping byte %d did not change the signature", i)
		}
	}

	if signature.Sign(payload, secret+"x") == base {
		t.Fatal("changing the secret did not change the signature")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"original":true}`)
	secret := "whsec_tampersecret"

	sig := signer.Sign(payload, secret)

	tampered := []byte(`{"original":false}`)
	if signer.Verify(tampered, secret, sig) {
		t.Error("Verify() returned true for tampered payload")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"data":"value"}`)

	sig := signer.Sign(payload, "whsec_correct_secret")

	if signer.Verify(payload, "whsec_wrong_secret", sig) {
		t.Error("Verify() returned true for wrong secret")
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret")

	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature should start with 'sha256=', got %q", sig)
	}

	// sha256= prefix (7) + 64 hex chars
	if len(sig) != 71 {
		t.Errorf("expected signature length 71, got %d", len(sig))
	}
}
