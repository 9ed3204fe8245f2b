package gateway

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/convictiond/oracled/types"
)

// handleWS upgrades /ws?key=... directly (outside the common middleware
// chain, since WS connections are long-lived and don't carry the per-route
// rate-limit/body-limit semantics a normal request does) and resolves tier
// from the presented API key, defaulting to public for an absent or
// unknown key.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	origin := r.Header.Get("Origin")
	if !g.cors.isAllowed(origin) {
		writeError(w, "origin not allowed", http.StatusForbidden)
		return
	}

	key := r.URL.Query().Get("key")
	tier := types.TierPublic
	if key != "" {
		if rec, ok := g.resolver.Resolve(key); ok {
			tier = rec.Tier
		}
	}

	if err := g.hub.Upgrade(w, r, key, tier); err != nil {
		g.log.WithError(err).Warn("ws upgrade failed")
	}
}
