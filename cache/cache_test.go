package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c, err := New(10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	c.clock = func() time.Time { return now }

	c.Set("k", 42)
	if v, ok := c.Get("k"); !ok || v.(int) != 42 {
		t.Fatalf("expected fresh hit, got %v %v", v, ok)
	}

	c.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestTTLCacheNegative(t *testing.T) {
	c, err := New(10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c.SetNegative("missing-key")
	if !c.GetNegative("missing-key") {
		t.Fatal("expected negative entry to be reported present")
	}
	if _, ok := c.Get("missing-key"); ok {
		t.Fatal("a negative entry must never satisfy a normal Get")
	}
}

func TestTTLCacheSweepRemovesOnlyExpired(t *testing.T) {
	c, err := New(10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	c.clock = func() time.Time { return now }
	c.Set("fresh", 1)
	c.Set("stale", 2)

	c.clock = func() time.Time { return now.Add(90 * time.Second) }
	c.Set("fresh", 1) // refresh storedAt for "fresh"

	c.clock = func() time.Time { return now.Add(2 * time.Minute) }
	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("expected exactly 1 removed, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry should have survived the sweep")
	}
}

func TestTTLCacheInvalidate(t *testing.T) {
	c, err := New(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	c.Set("a", 1)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected invalidated key to miss")
	}
}
