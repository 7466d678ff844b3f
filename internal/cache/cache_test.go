package cache

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// TestInMemoryCache_GetSet verifies that Set stores values and Get returns them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := []byte("png-bytes")
	if err := c.Set(ctx, "chart:risk:abc", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "chart:risk:abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if !bytes.Equal(got, val) {
		t.Errorf("Get() = %q, want %q", got, val)
	}
}

// TestInMemoryCache_SetCopiesValue verifies that later mutation of the caller's
// slice does not change the cached value.
func TestInMemoryCache_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := []byte("abc")
	_ = c.Set(ctx, "k", val, time.Minute)
	val[0] = 'z'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want abc", got)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies expired entries miss and are removed.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clock)

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() ok = false before TTL elapsed")
	}

	clock.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired entry removed", c.Len())
	}
}

func TestInMemoryCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Error("Set() error = nil, want context error")
	}
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get() error = nil, want context error")
	}
}

// TestInMemoryCache_Concurrent exercises the cache from many goroutines; run with -race.
func TestInMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", []byte{byte(j)}, time.Minute)
				_, _, _ = c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	type payload struct {
		Years []int `json:"years"`
	}
	if err := SetJSON(ctx, c, "climate", payload{Years: []int{2020, 2021}}, time.Minute); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	var got payload
	ok, err := GetJSON(ctx, c, "climate", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON() = %v, %v; want true, nil", ok, err)
	}
	if len(got.Years) != 2 || got.Years[1] != 2021 {
		t.Errorf("GetJSON() decoded %+v", got)
	}
}

// TestGetJSON_CorruptValueIsMiss verifies undecodable entries are treated as misses.
func TestGetJSON_CorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	_ = c.Set(ctx, "bad", []byte("{not json"), time.Minute)

	var v map[string]any
	ok, err := GetJSON(ctx, c, "bad", &v)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if ok {
		t.Error("GetJSON() ok = true, want false for corrupt value")
	}
}

func TestExpiration(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{10 * time.Minute, 600},
		{0, 3600},
		{-time.Second, 3600},
		{31 * 24 * time.Hour, 3600},
	}
	for _, tt := range tests {
		if got := expiration(tt.ttl); got != tt.want {
			t.Errorf("expiration(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestMemcachedCache_KeyIsHashedAndPrefixed(t *testing.T) {
	c := NewMemcachedCache("", 0, 0)
	k := c.key("chart:rainfall:New York 1.5")
	if len(k) != len(keyPrefix)+64 {
		t.Errorf("key length = %d, want %d", len(k), len(keyPrefix)+64)
	}
	if k[:len(keyPrefix)] != keyPrefix {
		t.Errorf("key = %q, want prefix %q", k, keyPrefix)
	}
	if c.key("a") == c.key("b") {
		t.Error("distinct keys hashed to same value")
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}

func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	ctx := context.Background()
	c := NewInMemoryCache()
	_ = c.Set(ctx, "chart:risk:abc", make([]byte, 32<<10), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "chart:risk:abc")
	}
}
