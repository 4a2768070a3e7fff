package edgecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedis spins up a miniredis and a cache on top of it.
func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ttl), mr
}

func TestRedis_GetPut(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedis(t, 0)

	if _, hit, err := c.Get(ctx, "http://origin/page"); hit || err != nil {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}

	if err := c.Put(ctx, "http://origin/page", testEntry()); err != nil {
		t.Fatal(err)
	}
	got, hit, err := c.Get(ctx, "http://origin/page")
	if err != nil || !hit {
		t.Fatalf("hit=%v err=%v", hit, err)
	}
	if got.Status != 200 || string(got.Body) != "<h1>hello</h1>" {
		t.Errorf("entry mismatch: %+v", got)
	}
	if got.Header.Get("X-Access-Level") != "member" {
		t.Errorf("header lost through serialization: %v", got.Header)
	}
}

func TestRedis_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, time.Minute)

	if err := c.Put(ctx, "k", testEntry()); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("fresh entry: want hit")
	}

	mr.FastForward(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry: want miss")
	}
}

func TestRedis_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, 0)

	mr.Set(redisKeyPrefix+"k", "not json")
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry: want clean miss, got hit=%v err=%v", hit, err)
	}
}

func TestRedis_BackendErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, 0)

	mr.Close()
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("closed backend: want error")
	}
}
