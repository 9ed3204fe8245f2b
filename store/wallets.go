package store

import (
	"sort"
	"time"

	"github.com/asdine/storm"
	bolt "go.etcd.io/bbolt"

	"github.com/convictiond/oracled/types"
)

const syncKeyLastProcessedSlot = "__last_processed_slot"

// UpsertWallet applies change only if change.Slot is strictly newer than the
// wallet's persisted LastSlot, per spec.md §4.1's slot-monotonicity rule.
// The whole read-check-write sequence runs inside one bbolt transaction so
// two concurrent applies for the same wallet cannot race past the gate.
func (s *StormStore) UpsertWallet(change types.BalanceChange) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result UpsertResult
	err := s.db.Bolt.Update(func(tx *bolt.Tx) error {
		node := s.db.WithTransaction(tx).From(nodeWallets)

		var w types.Wallet
		err := node.One("Address", change.Wallet, &w)
		switch {
		case err == storm.ErrNotFound:
			w = types.Wallet{Address: change.Wallet, Mint: change.Mint}
		case err != nil:
			return err
		}

		if w.HasAppliedChange && change.Slot <= w.LastSlot {
			// Older or duplicate slot: ignored per spec.md §4.1.
			result = UpsertResult{Wallet: w, Applied: false}
			return nil
		}
		wasZero := w.CurrentBalance.IsZero()
		previousBalance := w.CurrentBalance

		newBalance := w.CurrentBalance.AddSigned(change.Amount.Big())
		w.CurrentBalance = newBalance
		w.LastSlot = change.Slot
		w.HasAppliedChange = true
		w.LastTxSignature = change.Signature
		if change.Amount.IsPositive() {
			w.TotalReceived = w.TotalReceived.Add(change.Amount.Magnitude)
			if w.FirstBuyTs == nil {
				// write-once: first-ever positive delta.
				ts := change.BlockTime
				w.FirstBuyTs = &ts
				w.FirstBuyAmount = change.Amount.Magnitude
			}
		} else if !change.Amount.Magnitude.IsZero() {
			w.TotalSent = w.TotalSent.Add(change.Amount.Magnitude)
		}
		if newBalance.Cmp(w.PeakBalance) > 0 {
			w.PeakBalance = newBalance
		}

		transition := TransitionNone
		if wasZero && !newBalance.IsZero() {
			transition = TransitionNewHolder
		} else if !wasZero && newBalance.IsZero() {
			transition = TransitionExitHolder
		}

		if err := node.Save(&w); err != nil {
			return err
		}
		result = UpsertResult{Wallet: w, Transition: transition, Applied: true, PreviousBalance: previousBalance}
		return nil
	})
	if err != nil {
		return UpsertResult{}, wrapErr("UpsertWallet", KindTransient, err)
	}
	return result, nil
}

// RecordTransaction is the dedup guard: insertion is idempotent on
// Signature. It also advances the lastProcessedSlot watermark.
func (s *StormStore) RecordTransaction(change types.BalanceChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := false
	err := s.db.Bolt.Update(func(tx *bolt.Tx) error {
		txNode := s.db.WithTransaction(tx).From(nodeTransactions)

		var existing types.Transaction
		err := txNode.One("Signature", change.Signature, &existing)
		if err == nil {
			return nil // already recorded; not inserted.
		}
		if err != storm.ErrNotFound {
			return err
		}

		row := types.Transaction{
			Signature: change.Signature,
			Slot:      change.Slot,
			BlockTime: change.BlockTime,
			Wallet:    change.Wallet,
			Amount:    change.Amount,
		}
		if err := txNode.Save(&row); err != nil {
			return err
		}
		inserted = true

		syncNode := s.db.WithTransaction(tx).From(nodeSyncState)
		var entry types.SyncStateEntry
		cur := uint64(0)
		if err := syncNode.One("Key", syncKeyLastProcessedSlot, &entry); err == nil {
			cur = parseUint64(entry.Value)
		} else if err != storm.ErrNotFound {
			return err
		}
		if change.Slot > cur {
			return syncNode.Save(&types.SyncStateEntry{Key: syncKeyLastProcessedSlot, Value: formatUint64(change.Slot)})
		}
		return nil
	})
	if err != nil {
		return false, wrapErr("RecordTransaction", KindTransient, err)
	}
	return inserted, nil
}

// LastProcessedSlot returns the ingest watermark maintained incrementally by
// RecordTransaction, equivalent to max(slot) across transactions without an
// O(n) scan.
func (s *StormStore) LastProcessedSlot() (uint64, error) {
	var entry types.SyncStateEntry
	err := s.syncState().One("Key", syncKeyLastProcessedSlot, &entry)
	if err == storm.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("LastProcessedSlot", KindTransient, err)
	}
	return parseUint64(entry.Value), nil
}

func (s *StormStore) GetWallet(address string) (types.Wallet, error) {
	var w types.Wallet
	err := s.wallets().One("Address", address, &w)
	if err != nil {
		return types.Wallet{}, notFound("GetWallet", err)
	}
	return w, nil
}

// GetWallets returns every wallet with CurrentBalance >= minBalance, sorted
// by descending balance with ties broken by address. Amount is stored as
// variable-length magnitude bytes (see types.Amount.EncodeMsgpack), which
// is not lexicographically order-preserving across differing magnitudes, so
// rather than rely on storm's byte-order index range queries this scans the
// Wallets node once and sorts in memory with big.Int comparisons — see
// DESIGN.md for why a byte-padded order-preserving encoding was not chosen.
func (s *StormStore) GetWallets(minBalance types.Amount) ([]types.Wallet, error) {
	var all []types.Wallet
	if err := s.wallets().All(&all); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("GetWallets", KindTransient, err)
	}
	out := all[:0]
	for _, w := range all {
		if w.CurrentBalance.Cmp(minBalance) >= 0 {
			out = append(out, w)
		}
	}
	sortWalletsDesc(out)
	return out, nil
}

// GetHoldersFiltered implements the /k-metric/holders read path.
func (s *StormStore) GetHoldersFiltered(f HoldersFilter) ([]types.Wallet, int, error) {
	var all []types.Wallet
	if err := s.wallets().All(&all); err != nil && err != storm.ErrNotFound {
		return nil, 0, wrapErr("GetHoldersFiltered", KindTransient, err)
	}
	filtered := all[:0]
	for _, w := range all {
		if f.Mint != "" && w.Mint != f.Mint {
			continue
		}
		if !f.MinBalance.IsZero() && w.CurrentBalance.Cmp(f.MinBalance) < 0 {
			continue
		}
		if f.KMin != nil {
			if w.KWallet == nil || *w.KWallet < *f.KMin {
				continue
			}
		}
		if f.ExcludePools && f.PoolAddresses != nil && f.PoolAddresses[w.Address] {
			continue
		}
		filtered = append(filtered, w)
	}
	sortWalletsDesc(filtered)
	total := len(filtered)

	start := f.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return filtered[start:end], total, nil
}

// UpdateWalletKWallet writes a freshly computed K_wallet score for address,
// skipping the write if slot is not newer than the wallet's current
// KWalletSlot watermark (a slower-running worker losing a race against a
// faster rerun of the same wallet).
func (s *StormStore) UpdateWalletKWallet(address string, kwallet float64, tokensAnalyzed int, slot uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Bolt.Update(func(tx *bolt.Tx) error {
		node := s.db.WithTransaction(tx).From(nodeWallets)
		var w types.Wallet
		if err := node.One("Address", address, &w); err != nil {
			return wrapErr("UpdateWalletKWallet", KindTransient, err)
		}
		if w.KWalletSlot != 0 && slot <= w.KWalletSlot {
			return nil
		}
		w.KWallet = &kwallet
		w.KWalletTokensAnalyzed = tokensAnalyzed
		w.KWalletSlot = slot
		ts := at
		w.KWalletUpdatedAt = &ts
		return node.Save(&w)
	})
}

func sortWalletsDesc(ws []types.Wallet) {
	sort.Slice(ws, func(i, j int) bool {
		c := ws[i].CurrentBalance.Cmp(ws[j].CurrentBalance)
		if c != 0 {
			return c > 0
		}
		return ws[i].Address < ws[j].Address
	})
}

func parseUint64(s string) uint64 {
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		v = v*10 + uint64(r-'0')
	}
	return v
}

func formatUint64(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
