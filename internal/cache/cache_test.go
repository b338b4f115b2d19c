package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "quota:p1:202508"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(ctx, "quota:p1:202508", 42, time.Minute)
	value, ok := c.Get(ctx, "quota:p1:202508")
	if !ok || value != 42 {
		t.Fatalf("Get = %d/%v, want 42/true", value, ok)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	c.Set(ctx, "quota:p1:202508", 7, time.Hour)
	value, ok := c.Get(ctx, "quota:p1:202508")
	if !ok || value != 7 {
		t.Fatalf("Get = %d/%v, want 7/true", value, ok)
	}
}

func TestRedisCacheTransportFailureIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	c.Set(ctx, "k", 1, time.Hour)
	mr.Close()

	// A dead cache must degrade to a miss, never an error.
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("got a hit from a closed redis")
	}
	c.Set(ctx, "k", 2, time.Hour) // must not panic or block
}

func TestNewFallsBackToMemoryWithoutAddr(t *testing.T) {
	c := New("", "", 0)
	if _, ok := c.(*memoryCache); !ok {
		t.Fatalf("New(\"\") = %T, want *memoryCache", c)
	}
}
