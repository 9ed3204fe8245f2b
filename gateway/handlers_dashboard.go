package gateway

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/convictiond/oracled/kcalculator"
	"github.com/convictiond/oracled/persist"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

func (g *Gateway) threshold() types.Amount {
	return kcalculator.ThresholdFromStore(g.store, g.kcalcCfg, g.cfg.TokenDecimals)
}

// tokenInfo fetches (and 5-min caches) the primary token's market info for
// the /k-metric response envelope.
func (g *Gateway) tokenInfo(ctx context.Context) map[string]interface{} {
	key := "tokeninfo:" + g.cfg.TokenMint
	if v, ok := g.cacheNS.Token.Get(key); ok {
		return v.(map[string]interface{})
	}
	info, err := g.chain.FetchTokenInfo(ctx, g.cfg.TokenMint)
	out := map[string]interface{}{
		"mint":   g.cfg.TokenMint,
		"symbol": g.cfg.TokenSymbol,
	}
	if err == nil {
		if info.PriceUSD != nil {
			out["price"] = *info.PriceUSD
		}
		if info.Supply != nil {
			out["supply"] = info.Supply.String()
		}
		if info.MarketCap != nil {
			out["marketCap"] = *info.MarketCap
		}
		if info.Liquidity != nil {
			out["liquidity"] = *info.Liquidity
		}
	}
	g.cacheNS.Token.Set(key, out)
	return out
}

func (g *Gateway) handleKMetric(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	res, err := g.kcalc.Calculate(g.threshold())
	if err != nil {
		writeError(w, "failed to compute k-metric", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"k":              res.K,
		"holders":        res.Holders,
		"neverSold":      res.NeverSold,
		"accumulators":   res.Accumulators,
		"maintained":     res.Maintained,
		"partialSellers": res.PartialSellers,
		"majorSellers":   res.MajorSellers,
		"avgHoldDays":    res.AvgHoldDays,
		"og":             res.OG,
		"token":          g.tokenInfo(r.Context()),
		"calculatedAt":   res.CalculatedAt,
	})
}

func (g *Gateway) handleKMetricHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	snaps, err := g.store.ListSnapshots(since, 0)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	history := make([]map[string]interface{}, 0, len(snaps))
	for _, s := range snaps {
		history = append(history, map[string]interface{}{
			"date":    s.CreatedAt.Format("2006-01-02"),
			"k":       s.K,
			"holders": s.Holders,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history, "count": len(history)})
}

func (g *Gateway) handleHolders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	excludePools := q.Get("exclude_pools") == "true"
	minUSD := g.threshold()

	holders, total, err := g.store.GetHoldersFiltered(store.HoldersFilter{
		Mint:         g.cfg.TokenMint,
		MinBalance:   minUSD,
		ExcludePools: excludePools,
		Limit:        limit,
	})
	if err != nil {
		writeError(w, "failed to load holders", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	out := make([]map[string]interface{}, 0, len(holders))
	covered := 0
	for _, wlt := range holders {
		retention := types.Retention(wlt.CurrentBalance, wlt.FirstBuyAmount)
		var holdDays float64
		if wlt.FirstBuyTs != nil {
			holdDays = now.Sub(*wlt.FirstBuyTs).Hours() / 24
		}
		row := map[string]interface{}{
			"address":        wlt.Address,
			"balance":        wlt.CurrentBalance.String(),
			"retention":      retention,
			"classification": kcalculator.Classify(retention),
			"holdDays":       holdDays,
		}
		if wlt.KWallet != nil {
			row["k_wallet"] = *wlt.KWallet
			covered++
		}
		out = append(out, row)
	}
	coverage := 0.0
	if len(out) > 0 {
		coverage = float64(covered) / float64(len(out))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"holders":          out,
		"total":            total,
		"pools_detected":   0,
		"filter":           map[string]interface{}{"limit": limit, "exclude_pools": excludePools},
		"k_wallet_coverage": coverage,
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	lastSlot, _ := g.store.LastProcessedSlot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sync":        map[string]interface{}{"lastProcessedSlot": lastSlot},
		"gating":      map[string]interface{}{"gated": g.cfg.KGlobalGated, "failClosed": g.cfg.KGlobalFailClosed},
		"ws":          map[string]interface{}{"connections": g.hub.ConnectionCount()},
		"maintenance": g.cfg.Maintenance,
		"uptime":      time.Since(g.startedAt).Seconds(),
	})
}

func (g *Gateway) handleWalletKScore(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	addr := ps.ByName("addr")
	wlt, err := g.store.GetWallet(addr)
	if err != nil {
		writeError(w, "wallet not found", http.StatusNotFound)
		return
	}
	retention := types.Retention(wlt.CurrentBalance, wlt.FirstBuyAmount)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":        wlt.Address,
		"balance":        wlt.CurrentBalance.String(),
		"retention":      retention,
		"classification": kcalculator.Classify(retention),
	})
}

// handleWalletKGlobal implements the gated cross-token score endpoint from
// spec.md §4.8: admin key OR verified primary-token holder, fail-closed by
// default when neither the Store nor the Chain Adapter fallback can answer.
func (g *Gateway) handleWalletKGlobal(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	addr := ps.ByName("addr")
	if !g.cfg.KGlobalGated || g.isAdmin(r) || g.isVerifiedHolder(r.Context(), addr) {
		g.respondWalletKGlobal(w, addr)
		return
	}
	writeJSON(w, http.StatusForbidden, map[string]interface{}{
		"error":  "forbidden",
		"reason": g.gatingDenialReason(r.Context(), addr),
	})
}

func (g *Gateway) isAdmin(r *http.Request) bool {
	presented := r.Header.Get("X-Admin-Key")
	return g.cfg.AdminKey != "" && presented != "" && store.ConstantTimeEqual(presented, g.cfg.AdminKey)
}

// isVerifiedHolder checks Store first (fast path); on Store error it falls
// back to a Chain Adapter RPC. Both failing is fail-closed (returns false)
// unless K_GLOBAL_FAIL_CLOSED is explicitly disabled.
func (g *Gateway) isVerifiedHolder(ctx context.Context, addr string) bool {
	wlt, err := g.store.GetWallet(addr)
	if err == nil {
		return !wlt.CurrentBalance.IsZero()
	}
	holders, ferr := g.chain.FetchHolders(ctx, g.cfg.TokenMint)
	if ferr != nil {
		return !g.cfg.KGlobalFailClosed
	}
	for _, h := range holders {
		if h.Owner == addr {
			return !h.Balance.IsZero()
		}
	}
	return false
}

func (g *Gateway) gatingDenialReason(ctx context.Context, addr string) string {
	wlt, err := g.store.GetWallet(addr)
	if err == nil {
		if wlt.CurrentBalance.IsZero() {
			return "insufficient_balance"
		}
		return "not_holder"
	}
	if _, ferr := g.chain.FetchHolders(ctx, g.cfg.TokenMint); ferr != nil {
		return "verification_unavailable"
	}
	return "not_holder"
}

func (g *Gateway) respondWalletKGlobal(w http.ResponseWriter, addr string) {
	wlt, err := g.store.GetWallet(addr)
	if err != nil || wlt.KWallet == nil {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "calculating", "retry_after": 5})
		return
	}
	age := time.Since(*wlt.KWalletUpdatedAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":         wlt.Address,
		"k_wallet":        *wlt.KWallet,
		"tokensAnalyzed":  wlt.KWalletTokensAnalyzed,
		"source":          "db",
		"stale":           age > time.Hour,
		"age_seconds":     age.Seconds(),
		"poh":             map[string]interface{}{"slot": wlt.KWalletSlot},
	})
}

// handlePushWebhook verifies X-Helius-Signature against the configured
// secret before handing the raw body to the ingest pipeline, per spec.md
// §6's inbound wire protocol; a mismatch is 401 and never reaches Parse.
func (g *Gateway) handlePushWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sig := r.Header.Get("X-Helius-Signature")
	if !verifyWebhookSignature(g.cfg.HeliusWebhookSecret, sig, body) {
		writeError(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if err := g.pipeline.HandlePushBatch(body, g.chain); err != nil {
		writeError(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}

// handleTriggerSync runs one poll tick immediately, ahead of the regular
// pull-sync schedule, for an operator who just fixed an upstream gap.
func (g *Gateway) handleTriggerSync(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if g.syncTrigger == nil {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"triggered": false, "reason": "sync trigger not wired"})
		return
	}
	if err := g.syncTrigger(); err != nil {
		writeError(w, "sync failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"triggered": true})
}

// handleTriggerBackup copies the live database into the configured backup
// directory immediately, independent of the scheduled backup ticker.
func (g *Gateway) handleTriggerBackup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	dbPath := filepath.Join(g.cfg.DataDir, "oracle.db")
	backupDir := filepath.Join(g.cfg.DataDir, "backups")
	dest, err := persist.BackupNow(dbPath, backupDir, g.cfg.BackupRetentionCount, time.Now())
	if err != nil {
		writeError(w, "backup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"triggered": true, "path": dest})
}
