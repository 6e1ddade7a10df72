package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCacheTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisCacheStoreLoadRoundTrip(t *testing.T) {
	_, rdb := newRedisCacheTest(t)
	c := NewRedisCache(rdb, "as", time.Hour)
	defer c.Close()
	ctx := context.Background()

	stored, err := c.Store(ctx, "k", Entry{Status: StatusResolved, User: User{"email": "a@example.com"}})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", stored.Generation)
	}

	loaded, err := c.Load(ctx, "k")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != StatusResolved || loaded.User.String("email") != "a@example.com" {
		t.Fatalf("unexpected entry: %+v", loaded)
	}
}

func TestRedisCacheAppliesTTL(t *testing.T) {
	mr, rdb := newRedisCacheTest(t)
	c := NewRedisCache(rdb, "as", time.Minute)
	defer c.Close()

	if _, err := c.Store(context.Background(), "k", Entry{Status: StatusResolved}); err != nil {
		t.Fatalf("store: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	e, err := c.Load(context.Background(), "k")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Status != StatusUnknown {
		t.Fatalf("expected expired slot to read as unknown, got %v", e.Status)
	}
}

func TestRedisCacheDeleteIdempotent(t *testing.T) {
	_, rdb := newRedisCacheTest(t)
	c := NewRedisCache(rdb, "as", 0)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Store(ctx, "k", Entry{Status: StatusResolved}); err != nil {
		t.Fatalf("store: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	e, _ := c.Load(ctx, "k")
	if e.Status != StatusUnknown {
		t.Fatalf("expected unknown after delete, got %v", e.Status)
	}
}

func TestRedisCacheSharesSlotAcrossInstances(t *testing.T) {
	_, rdb := newRedisCacheTest(t)
	a := NewRedisCache(rdb, "as", 0)
	b := NewRedisCache(rdb, "as", 0)
	defer a.Close()
	defer b.Close()

	got := make(chan Entry, 4)
	cancel := b.Subscribe("k", func(e Entry) { got <- e })
	defer cancel()

	if _, err := a.Store(context.Background(), "k", Entry{Status: StatusResolved, User: User{"id": "7"}}); err != nil {
		t.Fatalf("store: %v", err)
	}

	select {
	case e := <-got:
		if e.Status != StatusResolved || e.User.String("id") != "7" {
			t.Fatalf("unexpected remote entry: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cross-instance notification")
	}
}

func TestRedisCacheLocalSubscriberSeesOriginalError(t *testing.T) {
	_, rdb := newRedisCacheTest(t)
	c := NewRedisCache(rdb, "as", 0)
	defer c.Close()

	sentinel := errors.New("network down")
	got := make(chan Entry, 4)
	cancel := c.Subscribe("k", func(e Entry) { got <- e })
	defer cancel()

	if _, err := c.Store(context.Background(), "k", Entry{Status: StatusUnresolved, Err: sentinel}); err != nil {
		t.Fatalf("store: %v", err)
	}
	e := <-got
	if !errors.Is(e.Err, sentinel) {
		t.Fatalf("expected original error for local subscriber, got %v", e.Err)
	}
	select {
	case dup := <-got:
		t.Fatalf("own publication must not be delivered twice: %+v", dup)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisCacheConcurrentStoresKeepHighestGeneration(t *testing.T) {
	_, rdb := newRedisCacheTest(t)
	a := NewRedisCache(rdb, "as", time.Hour)
	b := NewRedisCache(rdb, "as", time.Hour)
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	const perWriter = 25
	var (
		mu   sync.Mutex
		seen = make(map[uint64]string)
		wg   sync.WaitGroup
	)
	for name, c := range map[string]*RedisCache{"a": a, "b": b} {
		wg.Add(1)
		go func(name string, c *RedisCache) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				e, err := c.Store(ctx, "k", Entry{Status: StatusResolved, User: User{"writer": name}})
				if err != nil {
					t.Errorf("store %s/%d: %v", name, i, err)
					return
				}
				mu.Lock()
				if prev, dup := seen[e.Generation]; dup {
					t.Errorf("generation %d issued to both %s and %s", e.Generation, prev, name)
				}
				seen[e.Generation] = name
				mu.Unlock()
			}
		}(name, c)
	}
	wg.Wait()

	loaded, err := a.Load(ctx, "k")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Generation != 2*perWriter {
		t.Fatalf("slot holds generation %d, want the highest issued %d", loaded.Generation, 2*perWriter)
	}
	if loaded.User.String("writer") != seen[loaded.Generation] {
		t.Fatalf("slot body from %q does not match generation owner %q", loaded.User.String("writer"), seen[loaded.Generation])
	}
}

func TestRedisCacheSlowSubscriberDoesNotBlockOtherKeys(t *testing.T) {
	_, rdb := newRedisCacheTest(t)
	a := NewRedisCache(rdb, "as", 0)
	b := NewRedisCache(rdb, "as", 0)
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	release := make(chan struct{})
	slowEntered := make(chan struct{}, 1)
	cancelSlow := b.Subscribe("slow", func(Entry) {
		slowEntered <- struct{}{}
		<-release
	})
	defer cancelSlow()
	fast := make(chan Entry, 1)
	cancelFast := b.Subscribe("fast", func(e Entry) { fast <- e })
	defer cancelFast()
	defer close(release)

	if _, err := a.Store(ctx, "slow", Entry{Status: StatusResolved}); err != nil {
		t.Fatalf("store slow: %v", err)
	}
	select {
	case <-slowEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber never notified")
	}

	if _, err := a.Store(ctx, "fast", Entry{Status: StatusResolved, User: User{"id": "1"}}); err != nil {
		t.Fatalf("store fast: %v", err)
	}
	select {
	case e := <-fast:
		if e.User.String("id") != "1" {
			t.Fatalf("unexpected entry %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification for another key stalled behind a slow subscriber")
	}
}

func TestRedisCacheUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	c := NewRedisCache(rdb, "as", 0)
	defer c.Close()
	mr.Close()

	if _, err := c.Load(context.Background(), "k"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}
