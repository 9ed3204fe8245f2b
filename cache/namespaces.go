package cache

import (
	"time"

	"github.com/convictiond/oracled/lifecycle"
)

// Namespaces bundles six caches: the five spec.md §5 names, each sized and
// TTL'd per that section, plus the Gateway's rate-limit counters.
type Namespaces struct {
	KMetric   *TTLCache // 30s
	ApiKey    *TTLCache // 5min, supports negative caching
	Wallet    *TTLCache // 1h
	Token     *TTLCache // 5min
	Static    *TTLCache // 5min
	RateLimit *TTLCache // 25h, holds per-identity fixed-window counters
}

// NewNamespaces builds the standard cache set.
func NewNamespaces() (*Namespaces, error) {
	km, err := New(4096, 30*time.Second)
	if err != nil {
		return nil, err
	}
	ak, err := New(8192, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	wl, err := New(16384, time.Hour)
	if err != nil {
		return nil, err
	}
	tk, err := New(4096, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	st, err := New(256, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	rl, err := New(16384, 25*time.Hour) // outlives the longest (daily) window so a day counter is never evicted mid-window
	if err != nil {
		return nil, err
	}
	return &Namespaces{KMetric: km, ApiKey: ak, Wallet: wl, Token: tk, Static: st, RateLimit: rl}, nil
}

// RunSweeper starts the periodic cleanup sweep (every 5 min) that evicts
// expired entries from every namespace, until g is stopped.
func (n *Namespaces) RunSweeper(g *lifecycle.Group) {
	if err := g.Add(); err != nil {
		return
	}
	go func() {
		defer g.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n.KMetric.Sweep()
				n.ApiKey.Sweep()
				n.Wallet.Sweep()
				n.Token.Sweep()
				n.Static.Sweep()
				n.RateLimit.Sweep()
			case <-g.StopChan():
				return
			}
		}
	}()
}
