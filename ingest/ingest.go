// Package ingest is the slot-ordered apply pipeline described in spec.md
// §4.3: it merges the push webhook and pull polling paths into one ordered
// stream of BalanceChange records, applies each exactly once to the Store,
// and surfaces holder transitions and K deltas to the rest of the daemon.
// It is grounded on rivine's modules/wallet/update.go updateConfirmedSet:
// both sort an incoming batch into a strictly-ascending order before
// touching persistent state, and both treat "already applied" as a normal,
// silent no-op rather than an error.
package ingest

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/kcalculator"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

// EventSink receives the side effects of a successful apply. Implementations
// (fanout.Router, in production) must not block the caller for
// long; Pipeline calls these synchronously inline with ApplyBatch.
type EventSink interface {
	HolderNew(change types.BalanceChange, newBalance types.Amount)
	HolderExit(change types.BalanceChange, previousBalance types.Amount)
	KChange(mint string, oldK, newK int, holders int)
	Tx(change types.BalanceChange, newBalance types.Amount)
}

// Scorer recomputes and persists the token-wide K metric. kcalculator.Calculator
// satisfies this directly.
type Scorer interface {
	CalculateAndSave(oneUSDThreshold types.Amount) (kcalculator.Result, error)
}

// ThresholdFunc resolves the current USD-minimum-in-raw-tokens cutoff; it is
// a func rather than a fixed value because it depends on the latest token
// price, refreshed independently of ingestion.
type ThresholdFunc func() types.Amount

// Config carries the per-mint parameters from spec.md §6.
type Config struct {
	Mint string
	// KChangeThresholdPP is the minimum absolute percentage-point delta in K
	// that triggers an EventSink.KChange call, per spec.md §4.3 ("K moves by
	// at least one percentage point").
	KChangeThresholdPP int
}

// Pipeline applies BalanceChange batches to the Store in slot order and
// reports the resulting side effects.
type Pipeline struct {
	store     store.Store
	scorer    Scorer
	sink      EventSink
	threshold ThresholdFunc
	cfg       Config
	log       *logrus.Entry

	mu    sync.Mutex
	lastK *int
}

func New(s store.Store, scorer Scorer, sink EventSink, threshold ThresholdFunc, cfg Config, log *logrus.Entry) *Pipeline {
	return &Pipeline{store: s, scorer: scorer, sink: sink, threshold: threshold, cfg: cfg, log: log}
}

// ApplyBatch sorts changes ascending by slot (ties broken by signature for
// determinism when two transactions share a slot) and applies each exactly
// once. It is safe to call concurrently from both the webhook handler and
// the poller; idempotency is enforced by Store.RecordTransaction, not by
// Pipeline-level locking.
func (p *Pipeline) ApplyBatch(changes []types.BalanceChange) error {
	if len(changes) == 0 {
		return nil
	}
	sorted := make([]types.BalanceChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Slot != sorted[j].Slot {
			return sorted[i].Slot < sorted[j].Slot
		}
		return sorted[i].Signature < sorted[j].Signature
	})

	var applied int
	for _, change := range sorted {
		inserted, err := p.store.RecordTransaction(change)
		if err != nil {
			return err
		}
		if !inserted {
			continue // signature already seen via the other ingestion path
		}
		result, err := p.store.UpsertWallet(change)
		if err != nil {
			return err
		}
		if !result.Applied {
			continue // change's slot was not newer than the wallet's watermark
		}
		applied++
		switch result.Transition {
		case store.TransitionNewHolder:
			p.sink.HolderNew(change, result.Wallet.CurrentBalance)
		case store.TransitionExitHolder:
			p.sink.HolderExit(change, result.PreviousBalance)
		}
		p.sink.Tx(change, result.Wallet.CurrentBalance)
		if err := p.store.Enqueue(types.QueueWallet, change.Wallet, 10); err != nil {
			p.log.WithError(err).WithField("wallet", change.Wallet).Warn("failed to enqueue tx-triggered wallet rescore")
		}
	}

	if applied == 0 {
		return nil
	}
	return p.rescoreAndNotify()
}

func (p *Pipeline) rescoreAndNotify() error {
	res, err := p.scorer.CalculateAndSave(p.threshold())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastK != nil {
		delta := res.K - *p.lastK
		if delta < 0 {
			delta = -delta
		}
		if delta >= p.cfg.KChangeThresholdPP {
			p.sink.KChange(p.cfg.Mint, *p.lastK, res.K, res.Holders)
		}
	}
	k := res.K
	p.lastK = &k
	return nil
}

// IngestRaw parses one chain-adapter RawTransaction against the pipeline's
// configured mint and applies the resulting changes. Used by both the push
// webhook handler and the pull poller so there is exactly one apply path.
func (p *Pipeline) IngestRaw(adapter chainadapter.ChainAdapter, raw chainadapter.RawTransaction) error {
	changes, err := adapter.Parse(raw, p.cfg.Mint)
	if err != nil {
		return err
	}
	return p.ApplyBatch(changes)
}
