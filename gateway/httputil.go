// Package gateway is the single HTTP/WS entry point described in
// spec.md §4.8: security headers, CORS, API-key resolution, tiered rate
// limiting, body-size limits, request correlation, and route dispatch, in
// front of the rest of the daemon's components. It is grounded on
// rivine's pkg/api package: a julienschmidt/httprouter router wrapped by a
// chain of httprouter.Handle-to-httprouter.Handle middleware (the same
// shape as RequirePasswordHandler in pkg/api/http.go), plus the
// WriteJSON/WriteError/Error helpers from pkg/api/http.go and
// pkg/api/error.go, generalized to the oracle's response shapes.
package gateway

import (
	"encoding/json"
	"net/http"
)

// apiError mirrors rivine's pkg/api.Error: a minimal, single-message JSON
// error body.
type apiError struct {
	Message string `json:"message"`
}

func (e apiError) Error() string { return e.Message }

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(apiError{Message: message})
}

// writeJSON writes obj as the response body with the given status code.
func writeJSON(w http.ResponseWriter, code int, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
