package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache() *StateCache {
	return NewStateCache(time.Minute, slog.Default())
}

func TestGetFetchesOnMiss(t *testing.T) {
	c := newTestCache()
	var calls int32
	c.RegisterFetcher(CategoryGPIO, func(ctx context.Context, key string) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 1.0, nil
	})

	v, err := c.Get(context.Background(), "gpio:led", CategoryGPIO)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if v != 1.0 {
		t.Errorf("expected fetched value, got %v", v)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected one fetch, got %d", calls)
	}

	// Within the TTL the cached value is served without another fetch.
	if _, err := c.Get(context.Background(), "gpio:led", CategoryGPIO); err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected the hit to skip the backend, got %d fetches", calls)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	c := newTestCache()
	var calls int32
	release := make(chan struct{})
	c.RegisterFetcher(CategorySensor, func(ctx context.Context, key string) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42.0, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "sensor:all", CategorySensor); err != nil {
				t.Errorf("get failed: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected concurrent misses to share one fetch, got %d", got)
	}
}

func TestExpiryForcesRefetch(t *testing.T) {
	c := newTestCache()
	var calls int32
	c.RegisterFetcher(CategoryCustom, func(ctx context.Context, key string) (interface{}, error) {
		return atomic.AddInt32(&calls, 1), nil
	})

	c.Set("custom:x", 0, 10*time.Millisecond, CategoryCustom)
	time.Sleep(20 * time.Millisecond)

	v, err := c.Get(context.Background(), "custom:x", CategoryCustom)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if v != int32(1) {
		t.Errorf("expected a refetch after expiry, got %v", v)
	}
}

func TestSetSupersedesInFlightFetch(t *testing.T) {
	c := newTestCache()
	started := make(chan struct{})
	release := make(chan struct{})
	c.RegisterFetcher(CategoryFan, func(ctx context.Context, key string) (interface{}, error) {
		close(started)
		<-release
		return "stale", nil
	})

	done := make(chan interface{})
	go func() {
		v, _ := c.Get(context.Background(), "fan", CategoryFan)
		done <- v
	}()

	<-started
	// A mutation lands while the fetch is still in flight.
	c.Set("fan", "fresh", 0, CategoryFan)
	close(release)

	if v := <-done; v != "fresh" {
		t.Errorf("fetch result must not clobber the newer Set, got %v", v)
	}
	if entry, ok := c.Peek("fan"); !ok || entry.Value != "fresh" {
		t.Errorf("cache should hold the newer value")
	}
}

func TestFetchErrorSurfaced(t *testing.T) {
	c := newTestCache()
	fetchErr := errors.New("backend down")
	c.RegisterFetcher(CategoryPosition, func(ctx context.Context, key string) (interface{}, error) {
		return nil, fetchErr
	})

	if _, err := c.Get(context.Background(), "position", CategoryPosition); !errors.Is(err, fetchErr) {
		t.Errorf("expected the fetch error surfaced, got %v", err)
	}
}

func TestNoFetcherRegistered(t *testing.T) {
	c := newTestCache()
	if _, err := c.Get(context.Background(), "pwm:p1", CategoryPWM); err == nil {
		t.Fatal("expected an error without a registered fetcher")
	}
}

func TestInvalidatePattern(t *testing.T) {
	c := newTestCache()
	c.Set("gpio:led", 1, 0, CategoryGPIO)
	c.Set("gpio:valve", 0, 0, CategoryGPIO)
	c.Set("sensor:bed", 55.0, 0, CategorySensor)

	count, err := c.InvalidatePattern("gpio:*")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 invalidations, got %d", count)
	}
	if _, ok := c.Peek("sensor:bed"); !ok {
		t.Error("unrelated key must survive pattern invalidation")
	}
	if _, ok := c.Peek("gpio:led"); ok {
		t.Error("matched key must be gone")
	}
}

func TestInvalidatePatternRejectsBadGlob(t *testing.T) {
	c := newTestCache()
	if _, err := c.InvalidatePattern("gpio:["); err == nil {
		t.Fatal("expected malformed pattern to be rejected")
	}
}

func TestInvalidateCategoryAndClear(t *testing.T) {
	c := newTestCache()
	c.Set("pwm:a", 0.5, 0, CategoryPWM)
	c.Set("pwm:b", 0.7, 0, CategoryPWM)
	c.Set("fan", 1.0, 0, CategoryFan)

	if n := c.InvalidateCategory(CategoryPWM); n != 2 {
		t.Errorf("expected 2 category invalidations, got %d", n)
	}
	if n := c.Clear(); n != 1 {
		t.Errorf("expected 1 remaining entry cleared, got %d", n)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache()
	c.RegisterFetcher(CategoryGPIO, func(ctx context.Context, key string) (interface{}, error) {
		return 1, nil
	})

	c.Get(context.Background(), "gpio:a", CategoryGPIO) // miss
	c.Get(context.Background(), "gpio:a", CategoryGPIO) // hit
	c.Get(context.Background(), "gpio:a", CategoryGPIO) // hit

	s := c.Stats()
	if s.Misses != 1 || s.Hits != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if got := s.HitRate(); got < 0.66 || got > 0.67 {
		t.Errorf("unexpected hit rate: %v", got)
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	c := NewStateCache(10*time.Millisecond, slog.Default())
	c.Set("custom:old", 1, 5*time.Millisecond, CategoryCustom)
	c.Start()
	defer c.Stop()

	time.Sleep(50 * time.Millisecond)
	if len(c.Keys()) != 0 {
		t.Errorf("expected the sweep to evict the expired entry, keys: %v", c.Keys())
	}
}

func TestWarm(t *testing.T) {
	c := newTestCache()
	c.RegisterFetcher(CategorySensor, func(ctx context.Context, key string) (interface{}, error) {
		return 20.0, nil
	})
	c.RegisterFetcher(CategoryPosition, func(ctx context.Context, key string) (interface{}, error) {
		return nil, errors.New("not ready")
	})

	n := c.Warm(context.Background(), map[string]Category{
		"sensor:all": CategorySensor,
		"position":   CategoryPosition,
	})
	if n != 1 {
		t.Errorf("expected 1 warmed key, got %d", n)
	}
}
