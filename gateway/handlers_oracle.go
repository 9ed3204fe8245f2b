package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/convictiond/oracled/tokenscorer"
	"github.com/convictiond/oracled/types"
)

func (g *Gateway) handleOracleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	lastSlot, _ := g.store.LastProcessedSlot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"primaryMint":       g.cfg.TokenMint,
		"lastProcessedSlot": lastSlot,
	})
}

func (g *Gateway) handleOracleToken(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	mint := ps.ByName("mint")
	if mint == g.cfg.TokenMint {
		res, err := g.kcalc.Calculate(g.threshold())
		if err != nil {
			writeError(w, "failed to compute score", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"mint": mint, "k": res.K, "holders": res.Holders, "status": tokenscorer.StatusReady,
		})
		return
	}
	if !tokenscorer.IsAdmissible(mint, g.cfg.EcosystemSuffixes) {
		writeError(w, "mint not in tracked ecosystem", http.StatusBadRequest)
		return
	}
	res, status, err := g.tokenScorer.GetOrEnqueue(mint)
	if err != nil {
		writeError(w, "failed to schedule token score", http.StatusInternalServerError)
		return
	}
	if status != tokenscorer.StatusReady {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"mint": mint, "status": status, "retry_after": 5})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mint": mint, "k": res.K, "holdersSampled": res.HoldersSampled, "status": status, "calculatedAt": res.CalculatedAt,
	})
}

func (g *Gateway) handleOracleWallet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	addr := ps.ByName("addr")
	wlt, err := g.store.GetWallet(addr)
	if err != nil {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"address": addr, "status": "queued", "retry_after": 5})
		return
	}
	body := map[string]interface{}{
		"address": wlt.Address,
		"balance": wlt.CurrentBalance.String(),
		"status":  "ready",
	}
	if wlt.KWallet != nil {
		body["k_wallet"] = *wlt.KWallet
	}
	writeJSON(w, http.StatusOK, body)
}

type batchWalletsRequest struct {
	Addresses []string `json:"addresses"`
}

func (g *Gateway) handleOracleWalletsBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req batchWalletsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Addresses) == 0 || len(req.Addresses) > 100 {
		writeError(w, "addresses must contain 1-100 entries", http.StatusBadRequest)
		return
	}

	items := make([]map[string]interface{}, 0, len(req.Addresses))
	var ready, queued int
	for _, addr := range req.Addresses {
		wlt, err := g.store.GetWallet(addr)
		if err != nil {
			items = append(items, map[string]interface{}{"address": addr, "status": "queued"})
			if enqErr := g.store.Enqueue(types.QueueWallet, addr, 1); enqErr != nil {
				g.log.WithError(enqErr).WithField("wallet", addr).Warn("failed to enqueue wallet batch entry")
			}
			queued++
			continue
		}
		entry := map[string]interface{}{"address": addr, "balance": wlt.CurrentBalance.String(), "status": "ready"}
		if wlt.KWallet != nil {
			entry["k_wallet"] = *wlt.KWallet
		}
		items = append(items, entry)
		ready++
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":   items,
		"summary": map[string]interface{}{"total": len(items), "ready": ready, "queued": queued},
	})
}

type batchTokensRequest struct {
	Mints []string `json:"mints"`
}

func (g *Gateway) handleOracleTokensBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req batchTokensRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Mints) == 0 || len(req.Mints) > 50 {
		writeError(w, "mints must contain 1-50 entries", http.StatusBadRequest)
		return
	}

	items := make([]map[string]interface{}, 0, len(req.Mints))
	var ready, queued, calculating int
	for _, mint := range req.Mints {
		if !tokenscorer.IsAdmissible(mint, g.cfg.EcosystemSuffixes) {
			items = append(items, map[string]interface{}{"mint": mint, "status": "invalid"})
			continue
		}
		res, status, err := g.tokenScorer.GetOrEnqueue(mint)
		if err != nil {
			items = append(items, map[string]interface{}{"mint": mint, "status": "error"})
			continue
		}
		switch status {
		case tokenscorer.StatusReady:
			items = append(items, map[string]interface{}{"mint": mint, "k": res.K, "status": status})
			ready++
		case tokenscorer.StatusCalculating:
			items = append(items, map[string]interface{}{"mint": mint, "status": status})
			calculating++
		default:
			items = append(items, map[string]interface{}{"mint": mint, "status": status})
			queued++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":   items,
		"summary": map[string]interface{}{"total": len(items), "ready": ready, "queued": queued, "calculating": calculating},
	})
}
