package gateway

import (
	"sync"
	"time"

	"github.com/convictiond/oracled/cache"
	"github.com/convictiond/oracled/types"
)

// tierLimits is the per-minute/per-day ceiling table from spec.md §4.8. A
// zero PerMinute/PerDay means unlimited (the internal tier).
type tierLimits struct {
	PerMinute int
	PerDay    int
}

var tierTable = map[types.Tier]tierLimits{
	types.TierPublic:   {PerMinute: 100, PerDay: 10000},
	types.TierFree:     {PerMinute: 500, PerDay: 50000},
	types.TierStandard: {PerMinute: 1000, PerDay: 100000},
	types.TierPremium:  {PerMinute: 5000, PerDay: 500000},
	types.TierInternal: {PerMinute: 0, PerDay: 0},
}

// windowCounter is one fixed window's count + reset boundary.
type windowCounter struct {
	mu    sync.Mutex
	count int
	resetAt time.Time
}

func (w *windowCounter) take(now time.Time, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(window)
	}
	if limit <= 0 { // unlimited
		return true, -1, w.resetAt
	}
	if w.count >= limit {
		return false, 0, w.resetAt
	}
	w.count++
	return true, limit - w.count, w.resetAt
}

// Limiter enforces the two-window (minute, day) admission rule,
// identified by API-key id when present, else client IP, per spec.md
// §4.8. Each window is a fixed window (see windowCounter) that resets in
// full once its boundary passes; the windows do not slide. Per-identity state is cached in the Cache's rate-limit namespace so
// it is evicted the same way every other namespace is.
type Limiter struct {
	rl *cache.TTLCache
}

func NewLimiter(rl *cache.TTLCache) *Limiter {
	return &Limiter{rl: rl}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed         bool
	Limit           int
	Remaining       int
	ResetUnix       int64
	ExceededWindow  string // "minute_limit_exceeded" | "daily_limit_exceeded"
	Tier            types.Tier
}

// Check consumes one request for identity under tier. identity is the
// API-key id if the caller presented one, else the client IP.
func (l *Limiter) Check(identity string, tier types.Tier) Decision {
	limits := tierTable[tier]
	if limits == (tierLimits{}) && tier != types.TierInternal {
		limits = tierTable[types.TierPublic]
	}

	minute := l.counter(identity + "|minute")
	day := l.counter(identity + "|day")

	now := time.Now().UTC()
	minOK, minRemaining, minReset := minute.take(now, time.Minute, limits.PerMinute)
	if !minOK {
		return Decision{Allowed: false, Limit: limits.PerMinute, Remaining: 0, ResetUnix: minReset.Unix(), ExceededWindow: "minute_limit_exceeded", Tier: tier}
	}
	dayOK, dayRemaining, dayReset := day.take(now, 24*time.Hour, limits.PerDay)
	if !dayOK {
		return Decision{Allowed: false, Limit: limits.PerDay, Remaining: 0, ResetUnix: dayReset.Unix(), ExceededWindow: "daily_limit_exceeded", Tier: tier}
	}

	// Surface the tighter of the two windows' remaining/limit for response
	// headers, per spec.md §4.8 ("each response carries X-RateLimit-*").
	remaining, limit, reset := minRemaining, limits.PerMinute, minReset
	if limits.PerMinute <= 0 {
		remaining, limit, reset = dayRemaining, limits.PerDay, dayReset
	}
	return Decision{Allowed: true, Limit: limit, Remaining: remaining, ResetUnix: reset.Unix(), Tier: tier}
}

func (l *Limiter) counter(key string) *windowCounter {
	if v, ok := l.rl.Get(key); ok {
		return v.(*windowCounter)
	}
	wc := &windowCounter{resetAt: time.Now().UTC()}
	l.rl.Set(key, wc)
	return wc
}
