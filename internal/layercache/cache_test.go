package layercache

import (
	"testing"
	"time"
)

func TestGetPut_RoundTrip(t *testing.T) {
	c := New(8, time.Minute)

	key := Key("observations", "species=Aedes albopictus&bbox=0,0,1,1")
	if _, ok := c.Get(key); ok {
		t.Fatalf("unexpected hit on empty cache")
	}

	c.Put(key, []byte(`{"type":"FeatureCollection","features":[]}`))
	body, ok := c.Get(key)
	if !ok || len(body) == 0 {
		t.Fatalf("expected hit after Put")
	}
}

func TestKey_DistinguishesQueries(t *testing.T) {
	a := Key("observations", "bbox=0,0,1,1")
	b := Key("observations", "bbox=0,0,2,2")
	if a == b {
		t.Fatalf("different queries must not collide trivially")
	}
	if Key("observations", "bbox=0,0,1,1") != a {
		t.Fatalf("key derivation must be deterministic")
	}
}

func TestPurgeLayer_OnlyDropsThatLayer(t *testing.T) {
	c := New(8, time.Minute)

	obsKey := Key("observations", "q1")
	siteKey := Key("breeding_sites", "q1")
	c.Put(obsKey, []byte("a"))
	c.Put(siteKey, []byte("b"))

	if n := c.PurgeLayer("observations"); n != 1 {
		t.Fatalf("purged=%d want 1", n)
	}
	if _, ok := c.Get(obsKey); ok {
		t.Fatalf("purged layer must miss")
	}
	if _, ok := c.Get(siteKey); !ok {
		t.Fatalf("other layer must survive a purge")
	}
}

func TestTTL_Expires(t *testing.T) {
	c := New(8, 20*time.Millisecond)

	key := Key("observations", "q")
	c.Put(key, []byte("x"))
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Fatalf("entry must expire after the TTL")
	}
}
