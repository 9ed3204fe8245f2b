// Package kcalculator computes the token-wide conviction score K described
// in spec.md §4.4. It is a pure function of Store state: it never writes to
// wallets, only to the snapshots table (via CalculateAndSave) and, through
// the shared cache namespace, to its own 30s-TTL read cache.
package kcalculator

import (
	"math"
	"strconv"
	"time"

	"github.com/convictiond/oracled/cache"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

// Config carries the launch/OG parameters from spec.md §6's configuration
// enumeration.
type Config struct {
	LaunchTs         time.Time
	OGEarlyWindow    time.Duration // OG_EARLY_WINDOW, expressed as a duration of days
	OGHoldThreshold  time.Duration // OG_HOLD_THRESHOLD, expressed as a duration of days
	StaticMinBalance types.Amount  // MIN_BALANCE fallback when price is unavailable
}

// Result is the computed metric, matching the GET /k-metric response shape
// (spec.md §6) minus the token-info fields the gateway layers on.
type Result struct {
	K               int
	Holders         int
	NeverSold       int // accumulators + holders with TotalSent == 0, surfaced separately per the dashboard's richer breakdown
	Accumulators    int
	Maintained      int
	PartialSellers  int // == Reducers
	MajorSellers    int // == Extractors
	AvgHoldDays     float64
	OG              int
	CalculatedAt    time.Time
}

// Calculator reads a Store snapshot and computes K on demand, caching the
// result for 30s per spec.md §4.4.
type Calculator struct {
	store store.Store
	cache *cache.TTLCache
	cfg   Config
}

func New(s store.Store, c *cache.TTLCache, cfg Config) *Calculator {
	return &Calculator{store: s, cache: c, cfg: cfg}
}

const cacheKey = "k-metric"

// Calculate returns the cached Result if fresh, otherwise recomputes from
// the Store and repopulates the cache. oneUSDThreshold is the raw-token
// equivalent of the configured USD minimum at the latest price, or the
// static fallback when price is unavailable (spec.md §4.4).
func (c *Calculator) Calculate(oneUSDThreshold types.Amount) (Result, error) {
	if v, ok := c.cache.Get(cacheKey); ok {
		return v.(Result), nil
	}
	res, err := c.calculate(oneUSDThreshold)
	if err != nil {
		return Result{}, err
	}
	c.cache.Set(cacheKey, res)
	return res, nil
}

// CalculateAndSave recomputes unconditionally (bypassing the read cache,
// since a fresh ingest batch just landed) and appends a Snapshot row.
func (c *Calculator) CalculateAndSave(oneUSDThreshold types.Amount) (Result, error) {
	res, err := c.calculate(oneUSDThreshold)
	if err != nil {
		return Result{}, err
	}
	c.cache.Set(cacheKey, res)
	if err := c.store.SaveSnapshot(types.Snapshot{
		K: res.K, Holders: res.Holders,
		MaintainedCount: res.Maintained, AccumulatorsCount: res.Accumulators,
		ReducersCount: res.PartialSellers, ExtractorsCount: res.MajorSellers,
		AvgHoldDays: res.AvgHoldDays, CreatedAt: res.CalculatedAt,
	}); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Calculator) calculate(threshold types.Amount) (Result, error) {
	wallets, err := c.store.GetWallets(threshold)
	if err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()
	var res Result
	res.CalculatedAt = now
	var holdDaysSum float64
	for _, w := range wallets {
		retention := types.Retention(w.CurrentBalance, w.FirstBuyAmount)
		class := Classify(retention)
		res.Holders++
		switch class {
		case types.ClassAccumulator:
			res.Accumulators++
		case types.ClassHolder:
			res.Maintained++
		case types.ClassReducer:
			res.PartialSellers++
		case types.ClassExtractor:
			res.MajorSellers++
		}
		if w.TotalSent.IsZero() {
			res.NeverSold++
		}
		if w.FirstBuyTs != nil {
			holdDaysSum += now.Sub(*w.FirstBuyTs).Hours() / 24
			if c.isOG(*w.FirstBuyTs, now) {
				res.OG++
			}
		}
	}
	if res.Holders > 0 {
		res.AvgHoldDays = holdDaysSum / float64(res.Holders)
	}
	// Authoritative formula per spec.md §9's resolved Open Question:
	// K counts both the maintained and accumulator buckets, uniformly.
	if res.Holders > 0 {
		res.K = int(math.Round(100 * float64(res.Accumulators+res.Maintained) / float64(res.Holders)))
	}
	return res, nil
}

// isOG reports whether firstBuyTs falls within the early window after
// launch and the wallet has held for at least the hold threshold, per
// spec.md §4.4.
func (c *Calculator) isOG(firstBuyTs, now time.Time) bool {
	if c.cfg.LaunchTs.IsZero() {
		return false
	}
	if firstBuyTs.After(c.cfg.LaunchTs.Add(c.cfg.OGEarlyWindow)) {
		return false
	}
	if firstBuyTs.Before(c.cfg.LaunchTs) {
		return false
	}
	return now.Sub(firstBuyTs) >= c.cfg.OGHoldThreshold
}

// Classify buckets a retention ratio per spec.md §4.4's table.
func Classify(retention float64) types.Classification {
	switch {
	case retention >= 1.5:
		return types.ClassAccumulator
	case retention >= 1.0:
		return types.ClassHolder
	case retention >= 0.5:
		return types.ClassReducer
	default:
		return types.ClassExtractor
	}
}

// ThresholdFromStore resolves the current qualifying-holder cutoff by
// reading the latest token price cached in Store's sync state (written by
// whatever component tracks price) and converting one USD to raw token
// units at Config's decimals. It falls back to cfg.StaticMinBalance when no
// price is cached or it fails to parse, per spec.md §4.4's dynamic/static
// fallback rule. Shared by the Gateway's dashboard handlers and the ingest
// pipeline's rescoring path so both use exactly the same cutoff.
func ThresholdFromStore(s store.Store, cfg Config, decimals int) types.Amount {
	v, ok, err := s.GetSyncState(types.SyncKeyTokenPrice)
	if err != nil || !ok {
		return cfg.StaticMinBalance
	}
	price, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return cfg.StaticMinBalance
	}
	return OneUSDThresholdRaw(1.0, &price, decimals, cfg.StaticMinBalance)
}

// OneUSDThresholdRaw converts a USD amount into raw token units at the
// given price, falling back to staticMin when price is unavailable or
// non-positive, per spec.md §4.4.
func OneUSDThresholdRaw(usdMinimum float64, priceUSD *float64, decimals int, staticMin types.Amount) types.Amount {
	if priceUSD == nil || *priceUSD <= 0 {
		return staticMin
	}
	tokensForOneUSD := usdMinimum / *priceUSD
	raw := tokensForOneUSD * math.Pow(10, float64(decimals))
	if raw < 0 || math.IsInf(raw, 0) || math.IsNaN(raw) {
		return staticMin
	}
	return types.AmountFromInt64(int64(raw))
}
