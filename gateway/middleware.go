package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

const maxBodyBytes = 1 << 20 // 1 MiB, per spec.md §4.8's body-limit step
const slowLorisTimeout = 30 * time.Second

type ctxKey int

const (
	ctxKeyApiKey ctxKey = iota
	ctxKeyRequestID
	ctxKeyIdentity
	ctxKeyTier
)

func apiKeyFromContext(r *http.Request) (types.ApiKey, bool) {
	v, ok := r.Context().Value(ctxKeyApiKey).(types.ApiKey)
	return v, ok
}

func requestIDFromContext(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyRequestID).(string)
	return v
}

// middleware composes httprouter.Handle -> httprouter.Handle, the same
// wrapper shape as rivine's pkg/api/http.go RequirePasswordHandler.
type middleware func(httprouter.Handle) httprouter.Handle

func chain(h httprouter.Handle, mws ...middleware) httprouter.Handle {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// securityHeaders sets the fixed header set from spec.md §4.8 step 1, plus
// an HTTPS redirect when production is on and the request arrived over
// plain HTTP per X-Forwarded-Proto.
func securityHeaders(production bool) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			if production {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
				if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
					target := "https://" + r.Host + r.URL.RequestURI()
					http.Redirect(w, r, target, http.StatusPermanentRedirect)
					return
				}
			}
			next(w, r, ps)
		}
	}
}

// corsConfig holds the allow-list + wildcard patterns from CORS_ORIGINS.
type corsConfig struct {
	allowed  map[string]bool
	wildcard []string // patterns like "*.example.com"
}

func newCORSConfig(originsCSV string) corsConfig {
	c := corsConfig{allowed: make(map[string]bool)}
	for _, o := range strings.Split(originsCSV, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if strings.HasPrefix(o, "*.") {
			c.wildcard = append(c.wildcard, o[1:]) // keep the leading "."
			continue
		}
		c.allowed[o] = true
	}
	return c
}

func (c corsConfig) isAllowed(origin string) bool {
	if origin == "" {
		return true // same-origin request
	}
	if c.allowed[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, suffix := range c.wildcard {
		if strings.HasSuffix(u.Host, suffix) {
			return true
		}
	}
	return false
}

// cors implements spec.md §4.8 step 2.
func cors(cfg corsConfig) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			origin := r.Header.Get("Origin")
			if !cfg.isAllowed(origin) {
				writeError(w, "origin not allowed", http.StatusForbidden)
				return
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "X-Oracle-Key, Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next(w, r, ps)
		}
	}
}

// ApiKeyResolver validates a plaintext key, with the Gateway's own cache in
// front of Store.ValidateApiKey (hot-key + negative caching, 5 min TTL,
// spec.md §4.8 step 3).
type ApiKeyResolver interface {
	Resolve(plainKey string) (types.ApiKey, bool)
}

// apiKey resolves X-Oracle-Key and attaches the record to the request
// context when present; an absent or unknown key simply leaves the
// request unauthenticated (public tier), since not every route requires
// one.
func apiKey(resolver ApiKeyResolver) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			plain := r.Header.Get("X-Oracle-Key")
			ctx := r.Context()
			if plain != "" {
				if rec, ok := resolver.Resolve(plain); ok {
					ctx = context.WithValue(ctx, ctxKeyApiKey, rec)
					ctx = context.WithValue(ctx, ctxKeyIdentity, rec.ID)
					ctx = context.WithValue(ctx, ctxKeyTier, rec.Tier)
					r = r.WithContext(ctx)
				}
			}
			next(w, r, ps)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// rateLimit implements spec.md §4.8 step 4: identity is the API-key id if
// present, else client IP; response carries the X-RateLimit-* headers
// regardless of outcome.
func rateLimit(limiter *Limiter) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			tier := types.TierPublic
			identity := clientIP(r)
			if rec, ok := apiKeyFromContext(r); ok {
				tier = rec.Tier
				identity = rec.ID
			}
			d := limiter.Check(identity, tier)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetUnix, 10))
			w.Header().Set("X-RateLimit-Tier", string(d.Tier))
			if !d.Allowed {
				retryAfter := d.ResetUnix - time.Now().Unix()
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"message": d.ExceededWindow,
					"reason":  d.ExceededWindow,
				})
				return
			}
			next(w, r, ps)
		}
	}
}

// bodyLimit enforces the 1 MiB cap both by Content-Length precheck and a
// running byte counter, per spec.md §4.8 step 5. The slow-loris read
// timeout is enforced at the http.Server level (ReadTimeout), since a
// per-handler deadline cannot bound time spent before the handler runs.
func bodyLimit() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if r.ContentLength > maxBodyBytes {
				writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			if r.Method == http.MethodPost || r.Method == http.MethodDelete {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next(w, r, ps)
		}
	}
}

// requestID echoes or mints X-Request-ID and attaches it to the request
// context for logging, per spec.md §4.8 step 7.
func requestID() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
			next(w, r.WithContext(ctx), ps)
		}
	}
}

// usageAccounting increments UsageDaily for the resolved API key
// asynchronously so it never blocks the response, per spec.md §4.8 step 8.
type usageRecorder interface {
	IncrementUsage(keyID string, at time.Time) error
}

func usageAccounting(store usageRecorder) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			next(w, r, ps)
			if rec, ok := apiKeyFromContext(r); ok {
				go func(keyID string) {
					_ = store.IncrementUsage(keyID, time.Now().UTC())
				}(rec.ID)
			}
		}
	}
}

// maintenance short-circuits every route with a stable 503 body while the
// daemon is in maintenance mode, per spec.md §7.
func maintenance(on func() bool) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if on() {
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
					"error": "maintenance_mode",
				})
				return
			}
			next(w, r, ps)
		}
	}
}

// requireAdmin enforces the admin-key-gated surface: a missing or
// non-matching X-Admin-Key is a 401, compared constant-time via
// store.ConstantTimeEqual.
func requireAdmin(adminKey string) middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			presented := r.Header.Get("X-Admin-Key")
			if adminKey == "" || presented == "" || !store.ConstantTimeEqual(presented, adminKey) {
				writeError(w, "admin key required", http.StatusUnauthorized)
				return
			}
			next(w, r, ps)
		}
	}
}

// readBody drains the body (already size-limited by bodyLimit), returning
// the bytes or writing a 400 on read failure (oversize reader error included).
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}
