package store

import (
	"fmt"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := New(cfg)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// checkInvariants verifies the byte counter and index/LRU parity.
func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()

	e.mu.Lock()
	defer e.mu.Unlock()

	var sum int64
	e.idx.Range(func(key string, ent *entry) bool {
		sum += int64(len(key) + len(ent.value))
		if !e.lru.Contains(key) {
			t.Errorf("key %q in index but not in LRU tracker", key)
		}
		return true
	})
	if sum != e.used {
		t.Errorf("byte counter = %d, true sum = %d", e.used, sum)
	}
	if e.used > e.cfg.MaxMemory {
		t.Errorf("byte counter %d exceeds budget %d", e.used, e.cfg.MaxMemory)
	}
	if e.lru.Len() != e.idx.Len() {
		t.Errorf("LRU holds %d keys, index holds %d", e.lru.Len(), e.idx.Len())
	}
}

func TestSetGetDel(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	e.Set("foo", "bar", 0)
	if got, ok := e.Get("foo"); !ok || got != "bar" {
		t.Errorf("Get(foo) = %q, %v; want bar, true", got, ok)
	}

	if !e.Del("foo") {
		t.Error("Del(foo) = false, want true")
	}
	if _, ok := e.Get("foo"); ok {
		t.Error("Get(foo) after Del = true, want false")
	}
	if e.Del("foo") {
		t.Error("second Del(foo) = true, want false")
	}
	checkInvariants(t, e)
}

func TestSetOverwriteAccounting(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	e.Set("k", "short", 0)
	e.Set("k", "a much longer value", 0)

	st := e.Stats()
	want := int64(len("k") + len("a much longer value"))
	if st.UsedBytes != want {
		t.Errorf("UsedBytes = %d, want %d", st.UsedBytes, want)
	}
	if st.Keys != 1 {
		t.Errorf("Keys = %d, want 1", st.Keys)
	}
	checkInvariants(t, e)
}

func TestEmptyValueDistinctFromMissing(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	e.Set("k", "", 0)
	if got, ok := e.Get("k"); !ok || got != "" {
		t.Errorf("Get(k) = %q, %v; want empty string, true", got, ok)
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	// Budget fits exactly two 8-byte entries ("a"+7 bytes).
	cfg := DefaultConfig()
	cfg.MaxMemory = 16
	e := newTestEngine(t, cfg)

	e.Set("a", "1234567", 0)
	e.Set("b", "1234567", 0)
	e.Set("c", "1234567", 0)

	if _, ok := e.Get("a"); ok {
		t.Error("a still present, want evicted as LRU")
	}
	if _, ok := e.Get("b"); !ok {
		t.Error("b missing, want present")
	}
	if _, ok := e.Get("c"); !ok {
		t.Error("c missing, want present")
	}
	checkInvariants(t, e)
}

func TestGetPromotesAgainstEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemory = 16
	e := newTestEngine(t, cfg)

	e.Set("a", "1234567", 0)
	e.Set("b", "1234567", 0)
	// Touch a so that b becomes the eviction candidate.
	if _, ok := e.Get("a"); !ok {
		t.Fatal("a missing before eviction")
	}

	e.Set("c", "1234567", 0)

	if _, ok := e.Get("b"); ok {
		t.Error("b still present, want evicted")
	}
	if _, ok := e.Get("a"); !ok {
		t.Error("a missing, want retained after touch")
	}
	checkInvariants(t, e)
}

func TestOversizedEntryEvictsItself(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemory = 4
	e := newTestEngine(t, cfg)

	// Set succeeds but the entry cannot fit the budget on its own.
	e.Set("key", "a value far over four bytes", 0)

	if _, ok := e.Get("key"); ok {
		t.Error("oversized entry still present, want evicted")
	}
	st := e.Stats()
	if st.UsedBytes != 0 || st.Keys != 0 {
		t.Errorf("Stats = %+v, want empty engine", st)
	}
	checkInvariants(t, e)
}

func TestLazyExpiryOnGet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour // keep the sweeper out of the way
	e := newTestEngine(t, cfg)

	e.Set("k", "v", 30*time.Millisecond)
	if got, ok := e.Get("k"); !ok || got != "v" {
		t.Fatalf("Get(k) = %q, %v before expiry; want v, true", got, ok)
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok := e.Get("k"); ok {
		t.Error("Get(k) after TTL = true, want false")
	}
	if e.Len() != 0 {
		t.Errorf("Len() = %d after lazy expiry, want 0", e.Len())
	}
	checkInvariants(t, e)
}

func TestSweeperRemovesExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	e := newTestEngine(t, cfg)

	e.Set("gone", "v", 20*time.Millisecond)
	e.Set("stays", "v", 0)

	deadline := time.Now().Add(time.Second)
	for e.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if e.Len() != 1 {
		t.Fatalf("Len() = %d after sweep window, want 1", e.Len())
	}
	if _, ok := e.Get("stays"); !ok {
		t.Error("untouched key without TTL was removed")
	}
	checkInvariants(t, e)
}

func TestEvictExpiredBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	e := newTestEngine(t, cfg)

	for i := 0; i < 20; i++ {
		e.Set(fmt.Sprintf("ttl-%d", i), "v", 10*time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		e.Set(fmt.Sprintf("keep-%d", i), "v", 0)
	}

	time.Sleep(30 * time.Millisecond)

	if n := e.EvictExpired(); n != 20 {
		t.Errorf("EvictExpired() = %d, want 20", n)
	}
	if e.Len() != 5 {
		t.Errorf("Len() = %d after sweep, want 5", e.Len())
	}
	checkInvariants(t, e)
}

func TestSetRefreshesTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	e := newTestEngine(t, cfg)

	e.Set("k", "v1", 30*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	// Overwrite with a fresh TTL; the old deadline no longer applies.
	e.Set("k", "v2", 200*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if got, ok := e.Get("k"); !ok || got != "v2" {
		t.Errorf("Get(k) = %q, %v; want v2, true", got, ok)
	}
}

func TestSetClearsTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	e := newTestEngine(t, cfg)

	e.Set("k", "v1", 20*time.Millisecond)
	e.Set("k", "v2", 0)
	time.Sleep(40 * time.Millisecond)

	if n := e.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired() = %d, want 0", n)
	}
	if _, ok := e.Get("k"); !ok {
		t.Error("key with cleared TTL was removed")
	}
}

func TestAccountingUnderChurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemory = 1024
	cfg.SweepInterval = time.Hour
	e := newTestEngine(t, cfg)

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key-%d", i%50)
		switch i % 3 {
		case 0:
			e.Set(key, fmt.Sprintf("value-%d", i), 0)
		case 1:
			e.Get(key)
		case 2:
			e.Del(key)
		}
		checkInvariants(t, e)
	}
}
