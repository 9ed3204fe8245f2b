package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifyWebhookSignatureRoundTrip(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"type":"transfer","signature":"abc123"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	presented := hex.EncodeToString(mac.Sum(nil))

	if !verifyWebhookSignature(secret, presented, body) {
		t.Fatal("a correctly signed body must verify")
	}
}

func TestVerifyWebhookSignatureRejectsTamperedBody(t *testing.T) {
	secret := "whsec_test"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(`{"original":"body"}`))
	presented := hex.EncodeToString(mac.Sum(nil))

	if verifyWebhookSignature(secret, presented, []byte(`{"tampered":"body"}`)) {
		t.Fatal("a tampered body must not verify")
	}
}

func TestVerifyWebhookSignatureFailsClosedOnEmptySecret(t *testing.T) {
	if verifyWebhookSignature("", "anything", []byte("body")) {
		t.Fatal("an empty secret must fail closed, never accept")
	}
}

func TestVerifyWebhookSignatureRejectsEmptyPresented(t *testing.T) {
	if verifyWebhookSignature("whsec_test", "", []byte("body")) {
		t.Fatal("an empty presented signature must never verify")
	}
}
