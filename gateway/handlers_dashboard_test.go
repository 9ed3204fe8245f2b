package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convictiond/oracled/chainadapter"
)

// erroringChain reports FetchHolders failure, modeling an unreachable
// upstream RPC fallback.
type erroringChain struct{ noopChain }

func (erroringChain) FetchHolders(ctx context.Context, mint string) ([]chainadapter.Holder, error) {
	return nil, context.DeadlineExceeded
}

func TestHandleWalletKGlobalFailsClosedWhenStoreAndChainBothUnavailable(t *testing.T) {
	g, _ := newTestGateway(t)
	g.chain = erroringChain{}
	g.cfg.KGlobalGated = true
	g.cfg.KGlobalFailClosed = true
	// "unknown-addr" isn't in fs.wallets, so GetWallet returns store.ErrNotFound
	// and isVerifiedHolder must fall through to the (also failing) chain call.

	rec := doRequest(g, http.MethodGet, "/k-metric/wallet/unknown-addr/k-global", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when both Store and Chain Adapter fail, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["reason"] != "verification_unavailable" {
		t.Fatalf(`expected reason "verification_unavailable", got %+v`, body)
	}
}

func TestHandleWalletKGlobalAllowsAdminRegardlessOfGating(t *testing.T) {
	g, _ := newTestGateway(t)
	g.chain = erroringChain{}
	g.cfg.KGlobalGated = true
	g.cfg.AdminKey = "admin-secret"

	r := httptest.NewRequest(http.MethodGet, "/k-metric/wallet/unknown-addr/k-global", nil)
	r.Header.Set("X-Admin-Key", "admin-secret")
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, r)
	if rec.Code == http.StatusForbidden {
		t.Fatalf("an admin-key request must bypass gating, got 403: %s", rec.Body.String())
	}
}

func hmacSig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandlePushWebhookRejectsInvalidSignature(t *testing.T) {
	g, _ := newTestGateway(t)
	g.cfg.HeliusWebhookSecret = "top-secret"

	body := []byte(`[]`)
	r := httptest.NewRequest(http.MethodPost, "/k-metric/webhook", bytes.NewReader(body))
	r.Header.Set("X-Helius-Signature", "wrong-signature")
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an invalid webhook signature, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePushWebhookAcceptsValidSignature(t *testing.T) {
	g, _ := newTestGateway(t)
	g.cfg.HeliusWebhookSecret = "top-secret"

	body := []byte(`[]`)
	r := httptest.NewRequest(http.MethodPost, "/k-metric/webhook", bytes.NewReader(body))
	r.Header.Set("X-Helius-Signature", hmacSig("top-secret", body))
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a validly signed empty batch, got %d: %s", rec.Code, rec.Body.String())
	}
}
