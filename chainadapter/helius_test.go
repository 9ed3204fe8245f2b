package chainadapter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/convictiond/oracled/types"
)

func TestParseTransactionSplitsSendAndReceive(t *testing.T) {
	raw := RawTransaction{
		Signature: "sig-1",
		Slot:      42,
		BlockTime: time.Unix(1700000000, 0).UTC(),
		Transfers: []TokenTransfer{
			{Mint: "MINT", FromUserAccount: "alice", ToUserAccount: "bob", TokenAmount: types.AmountFromInt64(100)},
		},
	}
	changes, err := ParseTransaction(raw, "MINT")
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected one send + one receive change, got %d", len(changes))
	}
	var sawSend, sawReceive bool
	for _, c := range changes {
		if c.Wallet == "bob" {
			sawReceive = true
			if !c.Amount.IsPositive() {
				t.Error("bob's change should be positive")
			}
		}
		if c.Wallet == "alice" {
			sawSend = true
			if c.Amount.IsPositive() {
				t.Error("alice's change should be negative")
			}
		}
	}
	if !sawSend || !sawReceive {
		t.Fatalf("expected both send and receive changes, got %+v", changes)
	}
}

func TestParseTransactionSkipsOtherMints(t *testing.T) {
	raw := RawTransaction{
		Signature: "sig-1",
		Slot:      1,
		Transfers: []TokenTransfer{
			{Mint: "OTHER_MINT", FromUserAccount: "a", ToUserAccount: "b", TokenAmount: types.AmountFromInt64(5)},
		},
	}
	changes, err := ParseTransaction(raw, "MINT")
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected non-matching mint transfers to be skipped, got %+v", changes)
	}
}

func TestNormalizeTokenAmountTrimsFraction(t *testing.T) {
	if got := normalizeTokenAmount("123.456"); got != "123" {
		t.Errorf("normalizeTokenAmount(123.456) = %q, want 123", got)
	}
	if got := normalizeTokenAmount("789"); got != "789" {
		t.Errorf("normalizeTokenAmount(789) = %q, want 789", got)
	}
}

func TestParseWebhookPayloadDecodesEnrichedEvents(t *testing.T) {
	body, err := json.Marshal([]map[string]interface{}{
		{
			"type":      "TRANSFER",
			"slot":      10,
			"signature": "sig-1",
			"timestamp": 1700000000,
			"tokenTransfers": []map[string]interface{}{
				{"mint": "MINT", "fromUserAccount": "alice", "toUserAccount": "bob", "tokenAmount": 100},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	raws, err := ParseWebhookPayload(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 1 {
		t.Fatalf("expected 1 decoded transaction, got %d", len(raws))
	}
	if raws[0].Signature != "sig-1" || raws[0].Slot != 10 {
		t.Fatalf("unexpected decoded transaction: %+v", raws[0])
	}
	if len(raws[0].Transfers) != 1 || raws[0].Transfers[0].Mint != "MINT" {
		t.Fatalf("unexpected transfer decode: %+v", raws[0].Transfers)
	}
}

func TestParseWebhookPayloadRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseWebhookPayload([]byte("not json")); err == nil {
		t.Fatal("expected an error decoding malformed webhook payload")
	}
}
