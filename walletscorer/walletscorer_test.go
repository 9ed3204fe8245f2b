package walletscorer

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

type fakeChain struct {
	positions map[string]chainadapter.CrossTokenPosition
	err       error
}

func (f *fakeChain) FetchHolders(ctx context.Context, mint string) ([]chainadapter.Holder, error) {
	panic("not used")
}
func (f *fakeChain) FetchTokenInfo(ctx context.Context, mint string) (chainadapter.TokenInfo, error) {
	panic("not used")
}
func (f *fakeChain) SignaturesSince(ctx context.Context, mint string, limit int) ([]chainadapter.SignatureRef, error) {
	panic("not used")
}
func (f *fakeChain) FetchTransaction(ctx context.Context, signature string) (chainadapter.RawTransaction, error) {
	panic("not used")
}
func (f *fakeChain) Parse(raw chainadapter.RawTransaction, mint string) ([]types.BalanceChange, error) {
	panic("not used")
}
func (f *fakeChain) CrossTokenHistory(ctx context.Context, wallet string, maxPages int) (map[string]chainadapter.CrossTokenPosition, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}
func (f *fakeChain) ClassifyAddresses(ctx context.Context, addrs []string) (map[string]chainadapter.AddressClass, error) {
	panic("not used")
}

type fakeStore struct {
	store.Store
	wallet           types.Wallet
	walletErr        error
	updatedKWallet   float64
	updatedAnalyzed  int
	updateCalled     bool
}

func (f *fakeStore) GetWallet(address string) (types.Wallet, error) {
	return f.wallet, f.walletErr
}
func (f *fakeStore) UpdateWalletKWallet(address string, kwallet float64, tokensAnalyzed int, slot uint64, at time.Time) error {
	f.updateCalled = true
	f.updatedKWallet = kwallet
	f.updatedAnalyzed = tokensAnalyzed
	return nil
}

func pos(current, firstBuy int64) chainadapter.CrossTokenPosition {
	return chainadapter.CrossTokenPosition{
		Current:        types.AmountFromInt64(current),
		FirstBuyAmount: types.AmountFromInt64(firstBuy),
	}
}

func TestProcessComputesKWalletFromQualifyingPositions(t *testing.T) {
	chain := &fakeChain{positions: map[string]chainadapter.CrossTokenPosition{
		"MINT_A": pos(150, 100), // accumulator, qualifies
		"MINT_B": pos(100, 100), // holder, qualifies
		"MINT_C": pos(10, 100),  // extractor, does not qualify
		"MINT_D": pos(70, 100),  // reducer, does not qualify
	}}
	fs := &fakeStore{walletErr: nil}
	s := New(fs, chain, Config{}, logrus.NewEntry(logrus.New()))

	if err := s.process(context.Background(), "wallet-1"); err != nil {
		t.Fatal(err)
	}
	if !fs.updateCalled {
		t.Fatal("expected UpdateWalletKWallet to be called")
	}
	if fs.updatedAnalyzed != 4 {
		t.Fatalf("expected 4 positions analyzed, got %d", fs.updatedAnalyzed)
	}
	if fs.updatedKWallet != 50 {
		t.Fatalf("expected K_wallet=50 (2 of 4 qualifying), got %v", fs.updatedKWallet)
	}
}

func TestProcessExcludesPositionsOutsideEcosystem(t *testing.T) {
	chain := &fakeChain{positions: map[string]chainadapter.CrossTokenPosition{
		"FOO_ECO": pos(150, 100),
		"BAR_OTHER": pos(150, 100),
	}}
	fs := &fakeStore{}
	s := New(fs, chain, Config{EcosystemSuffixes: []string{"_ECO"}}, logrus.NewEntry(logrus.New()))

	if err := s.process(context.Background(), "wallet-1"); err != nil {
		t.Fatal(err)
	}
	if fs.updatedAnalyzed != 1 {
		t.Fatalf("expected only the _ECO-suffixed mint to be analyzed, got %d", fs.updatedAnalyzed)
	}
	if fs.updatedKWallet != 100 {
		t.Fatalf("expected K_wallet=100, got %v", fs.updatedKWallet)
	}
}

func TestProcessZeroAnalyzedYieldsZeroKWallet(t *testing.T) {
	chain := &fakeChain{positions: map[string]chainadapter.CrossTokenPosition{}}
	fs := &fakeStore{}
	s := New(fs, chain, Config{}, logrus.NewEntry(logrus.New()))

	if err := s.process(context.Background(), "wallet-1"); err != nil {
		t.Fatal(err)
	}
	if fs.updatedKWallet != 0 {
		t.Fatalf("expected K_wallet=0 with no analyzed positions, got %v", fs.updatedKWallet)
	}
}

func TestInEcosystemAllowsAllWhenUnconfigured(t *testing.T) {
	s := &Scorer{cfg: Config{}}
	if !s.inEcosystem("anything") {
		t.Fatal("expected no configured suffixes to admit every mint")
	}
}
