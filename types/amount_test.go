package types

import (
	"math/big"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "0"},
		{in: "0", want: "0"},
		{in: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{in: "-1", wantErr: true},
		{in: "not-a-number", wantErr: true},
	}
	for _, tc := range testCases {
		a, err := ParseAmount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q): expected error, got none", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAmount(%q): unexpected error: %v", tc.in, err)
		}
		if a.String() != tc.want {
			t.Errorf("ParseAmount(%q) = %q, want %q", tc.in, a.String(), tc.want)
		}
	}
}

func TestAmountSubClampsAtZero(t *testing.T) {
	a := AmountFromInt64(5)
	b := AmountFromInt64(8)
	got := a.Sub(b)
	if !got.IsZero() {
		t.Errorf("Sub underflow should clamp to zero, got %s", got.String())
	}
}

func TestAmountAddSignedClampsAtZero(t *testing.T) {
	a := AmountFromInt64(3)
	got := a.AddSigned(big.NewInt(-10))
	if !got.IsZero() {
		t.Errorf("AddSigned underflow should clamp to zero, got %s", got.String())
	}
	got2 := a.AddSigned(big.NewInt(4))
	if got2.String() != "7" {
		t.Errorf("AddSigned(3, 4) = %s, want 7", got2.String())
	}
}

func TestRetention(t *testing.T) {
	if r := Retention(AmountFromInt64(150), AmountFromInt64(100)); r != 1.5 {
		t.Errorf("Retention(150, 100) = %v, want 1.5", r)
	}
	if r := Retention(AmountFromInt64(0), Zero); r != 1.0 {
		t.Errorf("Retention with zero first-buy should default to 1.0, got %v", r)
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a, err := ParseAmount("98765432109876543210")
	if err != nil {
		t.Fatal(err)
	}
	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var b Amount
	if err := b.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if a.Cmp(b) != 0 {
		t.Errorf("round-tripped amount mismatch: %s != %s", a.String(), b.String())
	}
}

func TestAmountMsgpackRoundTrip(t *testing.T) {
	a, err := ParseAmount("42949672960")
	if err != nil {
		t.Fatal(err)
	}
	data, err := msgpack.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var b Amount
	if err := msgpack.Unmarshal(data, &b); err != nil {
		t.Fatal(err)
	}
	if a.Cmp(b) != 0 {
		t.Errorf("msgpack round-trip mismatch: %s != %s", a.String(), b.String())
	}
}

func TestSignedAmountBig(t *testing.T) {
	pos := PositiveSignedAmount(AmountFromInt64(10))
	if pos.Big().Sign() != 1 {
		t.Errorf("expected positive sign")
	}
	if !pos.IsPositive() {
		t.Errorf("expected IsPositive true")
	}
	neg := NegativeSignedAmount(AmountFromInt64(10))
	if neg.Big().Sign() != -1 {
		t.Errorf("expected negative sign")
	}
	if neg.IsPositive() {
		t.Errorf("expected IsPositive false for negative")
	}
	zero := PositiveSignedAmount(Zero)
	if zero.IsPositive() {
		t.Errorf("zero magnitude should not be positive")
	}
}
