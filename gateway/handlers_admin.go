package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/convictiond/oracled/types"
)

func (g *Gateway) handleListApiKeys(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	keys, err := g.store.ListApiKeys()
	if err != nil {
		writeError(w, "failed to list api keys", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

type createApiKeyRequest struct {
	Name      string     `json:"name"`
	Tier      types.Tier `json:"tier"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (g *Gateway) handleCreateApiKey(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req createApiKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	limits, ok := tierTable[req.Tier]
	if !ok {
		writeError(w, "unknown tier", http.StatusBadRequest)
		return
	}
	plain, rec, err := g.store.CreateApiKey(req.Name, req.Tier, limits.PerMinute, limits.PerDay, req.ExpiresAt)
	if err != nil {
		writeError(w, "failed to create api key", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"key": plain, "record": rec})
}

func (g *Gateway) handleDeactivateApiKey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := g.store.DeactivateApiKey(ps.ByName("id")); err != nil {
		writeError(w, "failed to deactivate api key", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("20060102")
	}
	count, err := g.store.GetUsage(ps.ByName("id"), date)
	if err != nil {
		writeError(w, "failed to load usage", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keyId": ps.ByName("id"), "date": date, "requests": count})
}

// handleAdminRecalculate forces an uncached K recomputation, bypassing the
// 30s read cache, for operators who just fixed an upstream data issue.
func (g *Gateway) handleAdminRecalculate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	res, err := g.kcalc.CalculateAndSave(g.threshold())
	if err != nil {
		writeError(w, "failed to recalculate", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"k": res.K, "holders": res.Holders, "calculatedAt": res.CalculatedAt})
}

// handleAdminWalletRescan re-enqueues one wallet at the highest priority so
// the wallet-scorer worker pool picks it up ahead of the staleness scan's
// backlog, per spec.md §4.5's backfill trigger.
func (g *Gateway) handleAdminWalletRescan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	addr := ps.ByName("addr")
	if err := g.store.Enqueue(types.QueueWallet, addr, 10); err != nil {
		writeError(w, "failed to enqueue wallet rescan", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"address": addr, "status": "queued"})
}

func (g *Gateway) handleAdminQueueStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind := types.QueueKind(ps.ByName("kind"))
	if kind != types.QueueWallet && kind != types.QueueToken {
		writeError(w, "unknown queue kind", http.StatusBadRequest)
		return
	}
	removed, err := g.store.CleanupQueue(kind, 5)
	if err != nil {
		writeError(w, "failed to inspect queue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": kind, "abandonedRemoved": removed})
}
