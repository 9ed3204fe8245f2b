// Package tokenscorer computes K on demand for an arbitrary mint by
// sampling its top holders, per spec.md §4.6. Unlike the K Calculator
// (which owns the primary token and is always warm), any mint can be
// asked about here, so results are served from a TTL cache with explicit
// queued/calculating/ready states rather than a continuously maintained
// row. GetOrEnqueue never reports StatusSyncing.
package tokenscorer

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/cache"
	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/kcalculator"
	"github.com/convictiond/oracled/lifecycle"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

// Status is the per-mint state surfaced at the HTTP layer (spec.md §6's
// batch endpoint `ready|queued|calculating|syncing`).
type Status string

const (
	StatusReady       Status = "ready"
	StatusQueued      Status = "queued"
	StatusCalculating Status = "calculating"
	StatusSyncing     Status = "syncing"
)

// Result is a computed K for one mint.
type Result struct {
	Mint           string
	K              int
	HoldersSampled int
	CalculatedAt   time.Time
}

type cachedEntry struct {
	result Result
}

// Config holds the tunables from spec.md §4.6.
type Config struct {
	TopN              int           // default 50
	Parallelism       int           // default 5, bounds concurrent cross-token fetches per mint
	TTL               time.Duration // default 1h
	Workers           int           // queue-drain worker count
	LeaseDuration     time.Duration
	MaxHistoryPages   int
	EcosystemSuffixes []string
}

// Scorer serves cached results and drains the token queue.
type Scorer struct {
	store store.Store
	chain chainadapter.ChainAdapter
	cfg   Config
	log   *logrus.Entry

	cache *cache.TTLCache

	mu      sync.Mutex
	pending map[string]bool // mints currently being worked by a drain loop
}

func New(s store.Store, chain chainadapter.ChainAdapter, cfg Config, log *logrus.Entry) (*Scorer, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 50
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 5
	}
	c, err := cache.New(2048, cfg.TTL)
	if err != nil {
		return nil, err
	}
	return &Scorer{store: s, chain: chain, cfg: cfg, log: log, cache: c, pending: make(map[string]bool)}, nil
}

// IsAdmissible reports whether mint carries one of the configured ecosystem
// suffixes; mints outside the allow-set fail validation at the HTTP layer
// per spec.md §4.6's point 4.
func IsAdmissible(mint string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(mint, suf) {
			return true
		}
	}
	return false
}

// GetOrEnqueue returns a fresh cached result if one exists, otherwise
// enqueues mint for background computation (idempotently) and reports the
// appropriate pending status.
func (s *Scorer) GetOrEnqueue(mint string) (Result, Status, error) {
	if v, ok := s.cache.Get(mint); ok {
		entry := v.(cachedEntry)
		return entry.result, StatusReady, nil
	}

	s.mu.Lock()
	alreadyPending := s.pending[mint]
	s.mu.Unlock()

	if err := s.store.Enqueue(types.QueueToken, mint, 0); err != nil {
		return Result{}, "", err
	}
	if alreadyPending {
		return Result{}, StatusCalculating, nil
	}
	return Result{}, StatusQueued, nil
}

// RunWorkers starts Config.Workers goroutines draining the token queue.
func (s *Scorer) RunWorkers(g *lifecycle.Group) {
	for i := 0; i < s.cfg.Workers; i++ {
		if err := g.Add(); err != nil {
			return
		}
		go s.workerLoop(g)
	}
}

func (s *Scorer) workerLoop(g *lifecycle.Group) {
	defer g.Done()
	for {
		select {
		case <-g.StopChan():
			return
		default:
		}
		entry, err := s.store.Dequeue(types.QueueToken, s.cfg.LeaseDuration)
		if err != nil {
			s.log.WithError(err).Warn("token queue dequeue failed")
			time.Sleep(2 * time.Second)
			continue
		}
		if entry == nil {
			select {
			case <-time.After(2 * time.Second):
			case <-g.StopChan():
				return
			}
			continue
		}

		s.mu.Lock()
		s.pending[entry.Key] = true
		s.mu.Unlock()

		err = s.compute(context.Background(), entry.Key)

		s.mu.Lock()
		delete(s.pending, entry.Key)
		s.mu.Unlock()

		if err != nil {
			s.log.WithError(err).WithField("mint", entry.Key).Warn("token score failed")
			if ferr := s.store.FailQueueEntry(types.QueueToken, entry.Key, err); ferr != nil {
				s.log.WithError(ferr).Warn("failed to mark token queue entry failed")
			}
			continue
		}
		if err := s.store.CompleteQueueEntry(types.QueueToken, entry.Key); err != nil {
			s.log.WithError(err).Warn("failed to mark token queue entry complete")
		}
	}
}

// compute fetches all holders, samples the top N by balance, and for each
// fetches cross-token history bounded to Config.Parallelism concurrent
// calls, aggregating K the same way the K Calculator does.
func (s *Scorer) compute(ctx context.Context, mint string) error {
	holders, err := s.chain.FetchHolders(ctx, mint)
	if err != nil {
		return err
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Balance.Cmp(holders[j].Balance) > 0
	})
	if len(holders) > s.cfg.TopN {
		holders = holders[:s.cfg.TopN]
	}

	type sample struct {
		retention float64
	}
	results := make([]sample, len(holders))
	sem := make(chan struct{}, s.cfg.Parallelism)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	for i, h := range holders {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, owner string) {
			defer wg.Done()
			defer func() { <-sem }()
			positions, err := s.chain.CrossTokenHistory(ctx, owner, s.cfg.MaxHistoryPages)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			pos, ok := positions[mint]
			if !ok {
				results[i] = sample{retention: 1.0}
				return
			}
			results[i] = sample{retention: types.Retention(pos.Current, pos.FirstBuyAmount)}
		}(i, h.Owner)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	var qualifying int
	for _, r := range results {
		switch kcalculator.Classify(r.retention) {
		case types.ClassAccumulator, types.ClassHolder:
			qualifying++
		}
	}
	var k int
	if len(results) > 0 {
		k = int(math.Round(100 * float64(qualifying) / float64(len(results))))
	}

	res := Result{Mint: mint, K: k, HoldersSampled: len(results), CalculatedAt: time.Now().UTC()}
	s.cache.Set(mint, cachedEntry{result: res})
	return nil
}
