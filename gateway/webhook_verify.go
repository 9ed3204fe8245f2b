package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifyWebhookSignature checks the inbound X-Helius-Signature header
// against an HMAC-SHA256 of the raw body computed with secret. An empty
// secret always fails closed: spec.md §7 requires startup to refuse an
// unset secret in production, but a non-production deployment with no
// secret configured must still reject signed-looking traffic rather than
// silently accept everything.
func verifyWebhookSignature(secret, presented string, body []byte) bool {
	if secret == "" || presented == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(presented))
}
