package store

import (
	"testing"
	"time"

	"github.com/convictiond/oracled/types"
)

func openTestStore(t *testing.T) *StormStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func bc(wallet string, slot uint64, sig string, amt int64) types.BalanceChange {
	var signed types.SignedAmount
	if amt >= 0 {
		signed = types.PositiveSignedAmount(types.AmountFromInt64(amt))
	} else {
		signed = types.NegativeSignedAmount(types.AmountFromInt64(-amt))
	}
	return types.BalanceChange{
		Mint: "MINT", Wallet: wallet, Slot: slot, BlockTime: time.Now().UTC(),
		Amount: signed, Signature: sig,
	}
}

func TestRecordTransactionIsIdempotentOnSignature(t *testing.T) {
	s := openTestStore(t)
	c := bc("wallet-1", 10, "sig-1", 100)

	first, err := s.RecordTransaction(c)
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Fatal("first recording of a new signature should insert")
	}
	second, err := s.RecordTransaction(c)
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Fatal("recording the same signature twice must not insert again")
	}
}

func TestUpsertWalletIgnoresNonNewerSlot(t *testing.T) {
	s := openTestStore(t)

	r1, err := s.UpsertWallet(bc("wallet-1", 10, "sig-1", 100))
	if err != nil {
		t.Fatal(err)
	}
	if !r1.Applied {
		t.Fatal("first change for a wallet must always apply")
	}

	r2, err := s.UpsertWallet(bc("wallet-1", 10, "sig-2", 50))
	if err != nil {
		t.Fatal(err)
	}
	if r2.Applied {
		t.Fatal("a change at the same slot as the watermark must be ignored")
	}

	r3, err := s.UpsertWallet(bc("wallet-1", 5, "sig-3", 50))
	if err != nil {
		t.Fatal(err)
	}
	if r3.Applied {
		t.Fatal("a change at an older slot than the watermark must be ignored")
	}

	w, err := s.GetWallet("wallet-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.CurrentBalance.String() != "100" {
		t.Fatalf("balance should be unaffected by ignored changes, got %s", w.CurrentBalance.String())
	}
}

func TestUpsertWalletPeakBalanceNeverDecreases(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpsertWallet(bc("wallet-1", 1, "sig-1", 500)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertWallet(bc("wallet-1", 2, "sig-2", -300)); err != nil {
		t.Fatal(err)
	}
	w, err := s.GetWallet("wallet-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.CurrentBalance.String() != "200" {
		t.Fatalf("CurrentBalance = %s, want 200", w.CurrentBalance.String())
	}
	if w.PeakBalance.String() != "500" {
		t.Fatalf("PeakBalance = %s, want 500 (must never decrease)", w.PeakBalance.String())
	}
}

func TestUpsertWalletFirstBuyIsWriteOnce(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpsertWallet(bc("wallet-1", 1, "sig-1", 100)); err != nil {
		t.Fatal(err)
	}
	w, err := s.GetWallet("wallet-1")
	if err != nil {
		t.Fatal(err)
	}
	firstTs := *w.FirstBuyTs
	firstAmt := w.FirstBuyAmount.String()

	if _, err := s.UpsertWallet(bc("wallet-1", 2, "sig-2", 900)); err != nil {
		t.Fatal(err)
	}
	w2, err := s.GetWallet("wallet-1")
	if err != nil {
		t.Fatal(err)
	}
	if !w2.FirstBuyTs.Equal(firstTs) {
		t.Fatal("FirstBuyTs must not change after the first positive delta")
	}
	if w2.FirstBuyAmount.String() != firstAmt {
		t.Fatalf("FirstBuyAmount must not change, was %s now %s", firstAmt, w2.FirstBuyAmount.String())
	}
}

func TestUpsertWalletReportsHolderTransitions(t *testing.T) {
	s := openTestStore(t)
	r1, err := s.UpsertWallet(bc("wallet-1", 1, "sig-1", 100))
	if err != nil {
		t.Fatal(err)
	}
	if r1.Transition != TransitionNewHolder {
		t.Fatalf("expected TransitionNewHolder, got %v", r1.Transition)
	}
	r2, err := s.UpsertWallet(bc("wallet-1", 2, "sig-2", -100))
	if err != nil {
		t.Fatal(err)
	}
	if r2.Transition != TransitionExitHolder {
		t.Fatalf("expected TransitionExitHolder, got %v", r2.Transition)
	}
}

func TestDequeueIsSingleFlight(t *testing.T) {
	s := openTestStore(t)
	if err := s.Enqueue(types.QueueWallet, "wallet-1", 0); err != nil {
		t.Fatal(err)
	}

	entry, err := s.Dequeue(types.QueueWallet, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Key != "wallet-1" {
		t.Fatalf("expected to dequeue wallet-1, got %+v", entry)
	}

	// The entry is now leased; a second dequeue must not return it again.
	again, err := s.Dequeue(types.QueueWallet, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Fatalf("expected no entries available while the lease holds, got %+v", again)
	}
}

func TestEnqueueCoalescesPriority(t *testing.T) {
	s := openTestStore(t)
	if err := s.Enqueue(types.QueueWallet, "wallet-1", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(types.QueueWallet, "wallet-1", 5); err != nil {
		t.Fatal(err)
	}
	entry, err := s.Dequeue(types.QueueWallet, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Priority != 5 {
		t.Fatalf("expected coalesced priority 5, got %d", entry.Priority)
	}
}

func TestFailQueueEntryClearsLeaseForRetry(t *testing.T) {
	s := openTestStore(t)
	if err := s.Enqueue(types.QueueWallet, "wallet-1", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Dequeue(types.QueueWallet, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.FailQueueEntry(types.QueueWallet, "wallet-1", nil); err != nil {
		t.Fatal(err)
	}
	entry, err := s.Dequeue(types.QueueWallet, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("expected the failed entry to be immediately re-dequeueable")
	}
	if entry.Attempts != 1 {
		t.Fatalf("expected Attempts=1 after one failure, got %d", entry.Attempts)
	}
}

func TestGetWalletsFiltersByMinBalance(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpsertWallet(bc("big", 1, "sig-1", 1000)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertWallet(bc("small", 1, "sig-2", 1)); err != nil {
		t.Fatal(err)
	}
	wallets, err := s.GetWallets(types.AmountFromInt64(100))
	if err != nil {
		t.Fatal(err)
	}
	if len(wallets) != 1 || wallets[0].Address != "big" {
		t.Fatalf("expected only 'big' to pass the threshold, got %+v", wallets)
	}
}
