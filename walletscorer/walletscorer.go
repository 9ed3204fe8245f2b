// Package walletscorer computes K_wallet, the cross-token conviction score
// for a single wallet across every mint in a recognized ecosystem
// (spec.md §4.5). It is grounded on rivine's consensus subscriber worker
// pattern (modules/consensus/consensusset.go's persistent background
// goroutines draining a bounded amount of work per wake) adapted to drain
// Store's wallet queue instead of a blockchain update feed.
package walletscorer

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/kcalculator"
	"github.com/convictiond/oracled/lifecycle"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

// Config holds the tunables named in spec.md §6.
type Config struct {
	Workers           int
	LeaseDuration      time.Duration
	MaxAttempts       int
	MaxHistoryPages   int
	EcosystemSuffixes []string
	StalenessInterval time.Duration // how long before a scored wallet is re-enqueued
	IdleSleep         time.Duration // backoff when the queue is empty
}

// Scorer drains the wallet queue with a pool of Config.Workers goroutines.
type Scorer struct {
	store store.Store
	chain chainadapter.ChainAdapter
	cfg   Config
	log   *logrus.Entry
}

func New(s store.Store, chain chainadapter.ChainAdapter, cfg Config, log *logrus.Entry) *Scorer {
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 2 * time.Second
	}
	return &Scorer{store: s, chain: chain, cfg: cfg, log: log}
}

// RunWorkers starts Config.Workers goroutines, each registered with g.
func (w *Scorer) RunWorkers(g *lifecycle.Group) {
	for i := 0; i < w.cfg.Workers; i++ {
		if err := g.Add(); err != nil {
			return
		}
		go w.workerLoop(g)
	}
}

func (w *Scorer) workerLoop(g *lifecycle.Group) {
	defer g.Done()
	for {
		select {
		case <-g.StopChan():
			return
		default:
		}

		entry, err := w.store.Dequeue(types.QueueWallet, w.cfg.LeaseDuration)
		if err != nil {
			w.log.WithError(err).Warn("wallet queue dequeue failed")
			select {
			case <-time.After(w.cfg.IdleSleep):
			case <-g.StopChan():
				return
			}
			continue
		}
		if entry == nil {
			select {
			case <-time.After(w.cfg.IdleSleep):
			case <-g.StopChan():
				return
			}
			continue
		}

		if err := w.process(context.Background(), entry.Key); err != nil {
			w.log.WithError(err).WithField("wallet", entry.Key).Warn("wallet score failed")
			if ferr := w.store.FailQueueEntry(types.QueueWallet, entry.Key, err); ferr != nil {
				w.log.WithError(ferr).Warn("failed to mark wallet queue entry failed")
			}
			continue
		}
		if err := w.store.CompleteQueueEntry(types.QueueWallet, entry.Key); err != nil {
			w.log.WithError(err).Warn("failed to mark wallet queue entry complete")
		}
	}
}

// process computes K_wallet for one address and persists it. Positions for
// mints outside the configured ecosystem suffixes are excluded from the
// denominator entirely, per spec.md §4.5's admission filter.
func (w *Scorer) process(ctx context.Context, address string) error {
	positions, err := w.chain.CrossTokenHistory(ctx, address, w.cfg.MaxHistoryPages)
	if err != nil {
		return err
	}

	var analyzed, qualifying int
	var maxSlot uint64
	for mint, pos := range positions {
		if !w.inEcosystem(mint) {
			continue
		}
		analyzed++
		retention := types.Retention(pos.Current, pos.FirstBuyAmount)
		switch kcalculator.Classify(retention) {
		case types.ClassAccumulator, types.ClassHolder:
			qualifying++
		}
	}

	wallet, err := w.store.GetWallet(address)
	if err == nil && wallet.LastSlot > maxSlot {
		maxSlot = wallet.LastSlot
	}

	var kwallet float64
	if analyzed > 0 {
		kwallet = 100 * float64(qualifying) / float64(analyzed)
	}
	return w.store.UpdateWalletKWallet(address, kwallet, analyzed, maxSlot, time.Now().UTC())
}

// inEcosystem reports whether mint carries one of the configured ecosystem
// suffixes (spec.md §6's ECOSYSTEM_SUFFIXES), the mechanism used to exclude
// unrelated tokens from a wallet's cross-token conviction denominator.
func (w *Scorer) inEcosystem(mint string) bool {
	if len(w.cfg.EcosystemSuffixes) == 0 {
		return true
	}
	for _, suf := range w.cfg.EcosystemSuffixes {
		if strings.HasSuffix(mint, suf) {
			return true
		}
	}
	return false
}

// RunStalenessScanner periodically re-enqueues every wallet whose
// K_wallet is older than Config.StalenessInterval, at a low priority so
// fresh work (new holders, API-triggered refreshes) is served first.
func (w *Scorer) RunStalenessScanner(g *lifecycle.Group) {
	if w.cfg.StalenessInterval <= 0 {
		return
	}
	if err := g.Add(); err != nil {
		return
	}
	go func() {
		defer g.Done()
		ticker := time.NewTicker(w.cfg.StalenessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.scanOnce()
			case <-g.StopChan():
				return
			}
		}
	}()
}

func (w *Scorer) scanOnce() {
	wallets, err := w.store.GetWallets(types.Zero)
	if err != nil {
		w.log.WithError(err).Warn("staleness scan failed")
		return
	}
	cutoff := time.Now().UTC().Add(-w.cfg.StalenessInterval)
	for _, wal := range wallets {
		if wal.KWalletUpdatedAt != nil && wal.KWalletUpdatedAt.After(cutoff) {
			continue
		}
		if err := w.store.Enqueue(types.QueueWallet, wal.Address, -1); err != nil {
			w.log.WithError(err).WithField("wallet", wal.Address).Warn("failed to enqueue stale wallet")
		}
	}
}
