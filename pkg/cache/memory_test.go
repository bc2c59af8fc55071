package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestMemory(capacity int) (*MemoryBackend, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMemoryBackend(capacity)
	m.now = clock.now
	return m, clock
}

func TestMemory_SetAndGet(t *testing.T) {
	m, _ := newTestMemory(10)
	ctx := context.Background()

	if err := m.Set(ctx, "track:1", []byte("a"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, "track:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "a" {
		t.Errorf("Get = %q, want a", got)
	}
}

func TestMemory_GetMiss(t *testing.T) {
	m, _ := newTestMemory(10)

	if _, err := m.Get(context.Background(), "absent"); err != ErrCacheMiss {
		t.Errorf("Get on absent key = %v, want ErrCacheMiss", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m, clock := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "playback:u1", []byte("state"), 5*time.Second)

	clock.advance(6 * time.Second)

	if _, err := m.Get(ctx, "playback:u1"); err != ErrCacheMiss {
		t.Errorf("Get after expiry = %v, want ErrCacheMiss", err)
	}

	// Expired read deleted the entry.
	stats, _ := m.Stats(ctx)
	if stats.Size != 0 {
		t.Errorf("Size after lazy expiry = %d, want 0", stats.Size)
	}
}

func TestMemory_ZeroTTLNeverStored(t *testing.T) {
	m, _ := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 0)

	if _, err := m.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("Get after ttl=0 set = %v, want ErrCacheMiss", err)
	}
}

func TestMemory_LRUEviction(t *testing.T) {
	m, _ := newTestMemory(3)
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), time.Minute)
	m.Set(ctx, "b", []byte("2"), time.Minute)
	m.Set(ctx, "c", []byte("3"), time.Minute)

	// Touch "a" so "b" becomes least recently used.
	if _, err := m.Get(ctx, "a"); err != nil {
		t.Fatalf("Get a: %v", err)
	}

	// Fourth distinct key evicts exactly the LRU entry.
	m.Set(ctx, "d", []byte("4"), time.Minute)

	if _, err := m.Get(ctx, "b"); err != ErrCacheMiss {
		t.Error("b should have been evicted as least recently used")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, err := m.Get(ctx, key); err != nil {
			t.Errorf("%s should still be cached: %v", key, err)
		}
	}

	stats, _ := m.Stats(ctx)
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestMemory_UpdateExistingKeyDoesNotEvict(t *testing.T) {
	m, _ := newTestMemory(2)
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), time.Minute)
	m.Set(ctx, "b", []byte("2"), time.Minute)
	m.Set(ctx, "a", []byte("updated"), time.Minute)

	got, err := m.Get(ctx, "a")
	if err != nil || string(got) != "updated" {
		t.Errorf("Get a = %q, %v; want updated", got, err)
	}
	if _, err := m.Get(ctx, "b"); err != nil {
		t.Errorf("updating a key must not evict: %v", err)
	}
}

func TestMemory_Delete(t *testing.T) {
	m, _ := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Minute)
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, "k"); err != ErrCacheMiss {
		t.Error("key survived Delete")
	}

	// Idempotent.
	if err := m.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete errored: %v", err)
	}
}

func TestMemory_ClearPattern(t *testing.T) {
	m, _ := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "playlist:p1", []byte("1"), time.Minute)
	m.Set(ctx, "playlist:p2", []byte("2"), time.Minute)
	m.Set(ctx, "track:t1", []byte("3"), time.Minute)

	removed, err := m.Clear(ctx, "playlist:*")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Clear removed %d, want 2", removed)
	}
	if _, err := m.Get(ctx, "track:t1"); err != nil {
		t.Error("unrelated key was cleared")
	}
}

func TestMemory_ClearAll(t *testing.T) {
	m, _ := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), time.Minute)
	m.Set(ctx, "b", []byte("2"), time.Minute)

	removed, err := m.Clear(ctx, "*")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Clear removed %d, want 2", removed)
	}
	stats, _ := m.Stats(ctx)
	if stats.Size != 0 {
		t.Errorf("Size after Clear(*) = %d, want 0", stats.Size)
	}
}

func TestMemory_Exists(t *testing.T) {
	m, clock := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Second)

	ok, err := m.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true", ok, err)
	}

	clock.advance(2 * time.Second)
	ok, err = m.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists after expiry = %v, %v; want false", ok, err)
	}
}

func TestMemory_Stats(t *testing.T) {
	m, _ := newTestMemory(10)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Minute)
	m.Get(ctx, "k")
	m.Get(ctx, "k")
	m.Get(ctx, "absent")

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Backend != "memory" {
		t.Errorf("Backend = %q", stats.Backend)
	}
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
	want := 2.0 / 3.0
	if stats.HitRate < want-0.001 || stats.HitRate > want+0.001 {
		t.Errorf("HitRate = %v, want %v", stats.HitRate, want)
	}
}
