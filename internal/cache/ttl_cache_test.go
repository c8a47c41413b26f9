package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New[string, int](0)

	if _, ok := c.Get("books"); ok {
		t.Fatal("empty cache returned a value")
	}
	c.Set("books", 66)
	if v, ok := c.Get("books"); !ok || v != 66 {
		t.Errorf("Get = %d, %v", v, ok)
	}
	if _, ok := c.Get("versions"); ok {
		t.Error("missing key returned ok")
	}
}

func TestExpiry(t *testing.T) {
	c := New[string, int](time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("books", 66)
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("books"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(31 * time.Second)
	if _, ok := c.Get("books"); ok {
		t.Error("entry should have expired")
	}
	if !c.IsExpired() {
		t.Error("IsExpired = false")
	}

	// Setting after expiry drops the stale entries.
	c.Set("versions", 2)
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New[string, int](0)
	c.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	c.Set("books", 1)
	if _, ok := c.Get("books"); !ok {
		t.Error("zero TTL entry expired")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string, int](0)
	c.Set("books", 66)
	c.Invalidate()
	if _, ok := c.Get("books"); ok {
		t.Error("Get after Invalidate returned a value")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestLoad(t *testing.T) {
	c := New[string, []string](0)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"kjv", "nkjv"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Load(ctx, "versions", load)
		if err != nil || len(v) != 2 {
			t.Fatalf("Load = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	c.Invalidate()
	if _, err := c.Load(ctx, "versions", load); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("loader called %d times after Invalidate, want 2", calls)
	}
}

func TestLoadErrorNotCached(t *testing.T) {
	c := New[string, int](0)
	boom := errors.New("database is locked")
	if _, err := c.Load(context.Background(), "books", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get("books"); ok {
		t.Error("failed load was cached")
	}
}

func TestLoadRacingInvalidate(t *testing.T) {
	c := New[string, int](0)
	v, err := c.Load(context.Background(), "books", func(context.Context) (int, error) {
		// A writer invalidates while the read is in flight.
		c.Invalidate()
		return 1, nil
	})
	if err != nil || v != 1 {
		t.Fatalf("Load = %d, %v", v, err)
	}
	if _, ok := c.Get("books"); ok {
		t.Error("stale read was stored after Invalidate")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(n, j)
				c.Get(n)
				if j%25 == 0 {
					c.Invalidate()
				}
			}
		}(i)
	}
	wg.Wait()
}
