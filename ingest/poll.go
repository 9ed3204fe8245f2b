package ingest

import (
	"context"
	"time"

	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/lifecycle"
	"github.com/convictiond/oracled/types"
)

// PollConfig parametrizes the pull path: a periodic signature scan that
// catches anything the push webhook missed (delivery gaps, restarts before
// a webhook subscription was live), per spec.md §4.3's "pull channel
// (periodic signature scan)".
type PollConfig struct {
	Interval   time.Duration
	BatchLimit int
}

// RunPoller starts the pull-sync ticker, registered with g so daemon
// shutdown waits for an in-flight tick to finish before returning.
func (p *Pipeline) RunPoller(g *lifecycle.Group, adapter chainadapter.ChainAdapter, cfg PollConfig) {
	if err := g.Add(); err != nil {
		return
	}
	go func() {
		defer g.Done()
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := p.pollOnce(context.Background(), adapter, cfg.BatchLimit); err != nil {
					p.log.WithError(err).Warn("poll tick failed")
				}
			case <-g.StopChan():
				return
			}
		}
	}()
}

// SyncNow runs one poll tick immediately, outside the ticker schedule, for
// an operator-triggered resync.
func (p *Pipeline) SyncNow(ctx context.Context, adapter chainadapter.ChainAdapter, limit int) error {
	return p.pollOnce(ctx, adapter, limit)
}

// pollOnce fetches signatures newer than the Store's last-processed-slot
// watermark, fetches each transaction, and applies the merged batch.
// Signatures the push path already recorded are silently skipped by
// Store.RecordTransaction's idempotency, so double-delivery across the two
// paths is harmless.
func (p *Pipeline) pollOnce(ctx context.Context, adapter chainadapter.ChainAdapter, limit int) error {
	lastSlot, err := p.store.LastProcessedSlot()
	if err != nil {
		return err
	}
	refs, err := adapter.SignaturesSince(ctx, p.cfg.Mint, limit)
	if err != nil {
		return err
	}

	var changes []types.BalanceChange
	for _, ref := range refs {
		if ref.Slot <= lastSlot {
			continue
		}
		raw, err := adapter.FetchTransaction(ctx, ref.Signature)
		if err != nil {
			return err
		}
		c, err := adapter.Parse(raw, p.cfg.Mint)
		if err != nil {
			return err
		}
		changes = append(changes, c...)
	}
	return p.ApplyBatch(changes)
}
