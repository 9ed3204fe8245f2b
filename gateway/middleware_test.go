package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
)

func okHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func TestRequireAdminFailsClosedOnEmptyAdminKey(t *testing.T) {
	h := requireAdmin("")(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.Header.Set("X-Admin-Key", "anything")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("an unconfigured admin key must reject every request, got %d", rec.Code)
	}
}

func TestRequireAdminRejectsMismatch(t *testing.T) {
	h := requireAdmin("correct-key")(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.Header.Set("X-Admin-Key", "wrong-key")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("a mismatched admin key must be rejected, got %d", rec.Code)
	}
}

func TestRequireAdminAcceptsMatch(t *testing.T) {
	h := requireAdmin("correct-key")(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.Header.Set("X-Admin-Key", "correct-key")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("a matching admin key must be accepted, got %d", rec.Code)
	}
}

func TestMaintenanceShortCircuits(t *testing.T) {
	on := true
	h := maintenance(func() bool { return on })(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("maintenance mode must short-circuit with 503, got %d", rec.Code)
	}

	on = false
	rec2 := httptest.NewRecorder()
	h(rec2, req, nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("maintenance off must pass through, got %d", rec2.Code)
	}
}

func TestCORSRejectsDisallowedOrigin(t *testing.T) {
	cfg := newCORSConfig("https://allowed.example.com")
	h := cors(cfg)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("a disallowed origin must be rejected, got %d", rec.Code)
	}
}

func TestCORSAllowsWildcardSubdomain(t *testing.T) {
	cfg := newCORSConfig("*.example.com")
	if !cfg.isAllowed("https://app.example.com") {
		t.Error("expected a subdomain of a wildcard entry to be allowed")
	}
	if cfg.isAllowed("https://example.org") {
		t.Error("a different TLD must not match the wildcard")
	}
}

func TestCORSAllowsSameOriginWithNoOriginHeader(t *testing.T) {
	cfg := newCORSConfig("https://allowed.example.com")
	h := cors(cfg)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("a request with no Origin header must pass through, got %d", rec.Code)
	}
}
