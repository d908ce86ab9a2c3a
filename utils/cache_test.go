package utils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Without a Redis client every key is a permanent miss, so every GetOrSetJSON
// call is a cache miss and the single-flight map is the only thing standing
// between N concurrent callers and N recomputes.
func TestGetOrSetJSONCoalescesConcurrentMisses(t *testing.T) {
	c := NewCache(nil)
	var computes int32
	release := make(chan struct{})

	const waiters = 20
	var wg sync.WaitGroup
	results := make([]int, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var v int
			errs[i] = c.GetOrSetJSON(context.Background(), "hot-key", time.Minute, &v, func(ctx context.Context) (interface{}, error) {
				atomic.AddInt32(&computes, 1)
				<-release
				return 42, nil
			})
			results[i] = v
		}(i)
	}

	// Let all goroutines reach the flight gate before the compute finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&computes); n != 1 {
		t.Fatalf("compute ran %d times for concurrent callers, want 1", n)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d: %v", i, errs[i])
		}
		if results[i] != 42 {
			t.Fatalf("waiter %d got %d, want 42", i, results[i])
		}
	}
}

func TestGetOrSetJSONSharesComputeError(t *testing.T) {
	c := NewCache(nil)
	boom := errors.New("backend down")

	var v int
	if err := c.GetOrSetJSON(context.Background(), "k", time.Minute, &v, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}

	// The failed flight must be cleared: a later call computes again and can
	// succeed. A transient error must not poison the key.
	if err := c.GetOrSetJSON(context.Background(), "k", time.Minute, &v, func(ctx context.Context) (interface{}, error) {
		return 7, nil
	}); err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if v != 7 {
		t.Fatalf("got %d, want 7", v)
	}
}

func TestGetOrSetJSONWaiterHonorsContext(t *testing.T) {
	c := NewCache(nil)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		var v int
		_ = c.GetOrSetJSON(context.Background(), "slow", time.Minute, &v, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var v int
	err := c.GetOrSetJSON(ctx, "slow", time.Minute, &v, func(ctx context.Context) (interface{}, error) {
		t.Error("waiter must not start its own compute")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}

func TestCacheFailsOpenWithoutRedis(t *testing.T) {
	c := NewCache(nil)
	ctx := context.Background()

	var v string
	if ok := c.GetJSON(ctx, "anything", &v); ok {
		t.Fatal("GetJSON must miss without a client")
	}
	// All of these must be silent no-ops.
	c.SetJSON(ctx, "anything", "value", time.Minute)
	c.Delete("a", "b")
	c.DeleteByPattern("leaderboard")

	if ok := c.GetJSON(ctx, "anything", &v); ok {
		t.Fatal("SetJSON must not have stored anything without a client")
	}
}

func TestCacheKeyBuilders(t *testing.T) {
	if got := ProfileCacheKey(7); got != "profile:7" {
		t.Errorf("ProfileCacheKey = %q", got)
	}
	if got := StreakCacheKey(7); got != "streak:7" {
		t.Errorf("StreakCacheKey = %q", got)
	}
	if got := QuestsCacheKey(7, "2026-03-10"); got != "quests:7:2026-03-10" {
		t.Errorf("QuestsCacheKey = %q", got)
	}
}
