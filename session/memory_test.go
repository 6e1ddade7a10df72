package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryCacheLoadMissingIsUnknown(t *testing.T) {
	c := NewMemoryCache()
	e, err := c.Load(context.Background(), "http://api/api/user")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Status != StatusUnknown || e.HasUser() {
		t.Fatalf("expected unknown empty entry, got %+v", e)
	}
}

func TestMemoryCacheStoreAssignsGenerationAndNotifies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key("http://api/api/user", "")

	var got []Entry
	cancel := c.Subscribe(key, func(e Entry) { got = append(got, e) })
	defer cancel()

	first, _ := c.Store(ctx, key, Entry{Status: StatusRevalidating})
	second, _ := c.Store(ctx, key, Entry{Status: StatusResolved, User: User{"id": "1"}})

	if first.Generation != 1 || second.Generation != 2 {
		t.Fatalf("expected generations 1,2 got %d,%d", first.Generation, second.Generation)
	}
	if len(got) != 2 || got[1].Status != StatusResolved {
		t.Fatalf("unexpected notifications: %+v", got)
	}

	loaded, _ := c.Load(ctx, key)
	if loaded.Generation != 2 || loaded.User.String("id") != "1" {
		t.Fatalf("unexpected load: %+v", loaded)
	}
}

func TestMemoryCacheUnsubscribeStopsDelivery(t *testing.T) {
	c := NewMemoryCache()
	key := "k"
	var n atomic.Int32
	cancel := c.Subscribe(key, func(Entry) { n.Add(1) })
	_, _ = c.Store(context.Background(), key, Entry{Status: StatusResolved})
	cancel()
	cancel()
	_, _ = c.Store(context.Background(), key, Entry{Status: StatusUnresolved})

	if n.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", n.Load())
	}
	if c.Subscribers(key) != 0 {
		t.Fatalf("expected no subscribers, got %d", c.Subscribers(key))
	}
}

func TestMemoryCacheDoSharesInFlightFetch(t *testing.T) {
	c := NewMemoryCache()
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fetch := func(ctx context.Context) (Entry, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return c.Store(ctx, "k", Entry{Status: StatusResolved, User: User{"id": "1"}})
	}

	var wg sync.WaitGroup
	results := make([]Entry, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Do(context.Background(), "k", fetch)
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", calls.Load())
	}
	for i, r := range results {
		if r.Status != StatusResolved {
			t.Fatalf("result %d not shared: %+v", i, r)
		}
	}
}

func TestMemoryCacheDeleteKeepsGenerationMonotonic(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_, _ = c.Store(ctx, "k", Entry{Status: StatusResolved})
	_ = c.Delete(ctx, "k")
	_ = c.Delete(ctx, "k")

	e, _ := c.Load(ctx, "k")
	if e.Status != StatusUnknown || e.Generation != 1 {
		t.Fatalf("unexpected entry after delete: %+v", e)
	}
	next, _ := c.Store(ctx, "k", Entry{Status: StatusResolved})
	if next.Generation != 2 {
		t.Fatalf("generation must keep growing across delete, got %d", next.Generation)
	}
}

func TestUserEmailVerified(t *testing.T) {
	cases := []struct {
		user User
		want bool
	}{
		{nil, false},
		{User{}, false},
		{User{"email_verified_at": nil}, false},
		{User{"email_verified_at": ""}, false},
		{User{"email_verified_at": "2024-05-01T10:00:00.000000Z"}, true},
	}
	for i, tc := range cases {
		if got := tc.user.EmailVerified(); got != tc.want {
			t.Fatalf("case %d: got %v want %v", i, got, tc.want)
		}
	}
}

func TestKeyAppendsScope(t *testing.T) {
	if Key(" http://api/api/user ", "") != "http://api/api/user" {
		t.Fatal("expected trimmed endpoint key")
	}
	if Key("http://api/api/user", "abc") != "http://api/api/user#abc" {
		t.Fatal("expected scoped key")
	}
}
