package fanout

import (
	"testing"

	"github.com/convictiond/oracled/types"
)

func TestSignIsDeterministicAndKeyed(t *testing.T) {
	a := sign("secret-1", []byte(`{"event":"k_change"}`))
	b := sign("secret-1", []byte(`{"event":"k_change"}`))
	if a != b {
		t.Fatal("sign must be deterministic for the same secret and payload")
	}
	c := sign("secret-2", []byte(`{"event":"k_change"}`))
	if a == c {
		t.Fatal("different secrets must produce different signatures")
	}
	d := sign("secret-1", []byte(`{"event":"holder_new"}`))
	if a == d {
		t.Fatal("different payloads must produce different signatures")
	}
}

func TestContainsEvent(t *testing.T) {
	set := []types.WebhookEventType{types.EventKChange, types.EventHolderNew}
	if !containsEvent(set, types.EventKChange) {
		t.Error("expected EventKChange to be found")
	}
	if containsEvent(set, types.EventThresholdAlert) {
		t.Error("did not expect EventThresholdAlert to be found")
	}
}
