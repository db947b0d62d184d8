package cache

import (
	"testing"
	"time"
)

func TestTTLRoundTrip(t *testing.T) {
	c := NewTTL()
	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = %v, %t", got, ok)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key still present")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewTTL()
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", 1, 10*time.Second)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry missing before expiry")
	}

	c.now = func() time.Time { return base.Add(11 * time.Second) }
	if _, ok := c.Get("k"); ok {
		t.Error("entry survived past its ttl")
	}
}

func TestTTLZeroNeverExpires(t *testing.T) {
	c := NewTTL()
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", 1, 0)

	c.now = func() time.Time { return base.Add(24 * time.Hour) }
	if _, ok := c.Get("k"); !ok {
		t.Error("zero-ttl entry expired")
	}
}
