package store

import (
	"sync"
	"time"

	"github.com/blinklabs/blinkdb/internal/telemetry"
	"github.com/blinklabs/blinkdb/internal/telemetry/logger"
	"github.com/blinklabs/blinkdb/pkg/hashidx"
	"github.com/blinklabs/blinkdb/pkg/lrulist"
)

// Default engine settings.
const (
	DefaultMaxMemory     = 1 << 30 // 1 GiB
	DefaultSweepInterval = time.Second
)

// Config holds the engine configuration.
type Config struct {
	// MaxMemory is the byte budget over all live entries,
	// counted as len(key)+len(value) per entry.
	MaxMemory int64
	// SweepInterval is the cadence of the TTL sweeper.
	SweepInterval time.Duration
	// Logger receives engine events. Defaults to the global logger.
	Logger logger.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxMemory:     DefaultMaxMemory,
		SweepInterval: DefaultSweepInterval,
	}
}

// entry is the stored record for one key. Entries are owned exclusively
// by the engine and mutated in place under its mutex.
type entry struct {
	value      string
	expiresAt  time.Time // zero means never
	lastAccess time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	Keys      int
	UsedBytes int64
	MaxMemory int64
}

// Engine is the storage engine. All methods are safe for concurrent use.
type Engine struct {
	mu   sync.Mutex
	idx  *hashidx.Map[*entry]
	lru  *lrulist.List
	used int64

	cfg Config
	log logger.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an engine and starts its TTL sweeper.
func New(cfg Config) *Engine {
	if cfg.MaxMemory <= 0 {
		cfg.MaxMemory = DefaultMaxMemory
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	e := &Engine{
		idx:  hashidx.New[*entry](),
		lru:  lrulist.New(),
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}

	e.wg.Add(1)
	go e.sweepLoop()

	return e
}

// Close stops the sweeper. The engine remains usable for direct calls
// afterwards, but no background expiry runs.
func (e *Engine) Close() error {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	e.wg.Wait()
	return nil
}

// Set stores value under key with an optional TTL (ttl <= 0 means no
// expiry), then enforces the memory budget by evicting LRU keys. The
// newly written key can itself be evicted when it alone exceeds the
// budget; Set still succeeds in that case.
func (e *Engine) Set(key, value string, ttl time.Duration) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.idx.Get(key); ok {
		e.used -= int64(len(key) + len(old.value))
	}

	ent := &entry{value: value, lastAccess: now}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}
	e.idx.Insert(key, ent)
	e.used += int64(len(key) + len(value))
	e.lru.Touch(key)

	e.enforceBudget()
	e.publishStats()
}

// Get returns the value under key. An entry whose TTL has passed is
// removed on the spot and reported as missing.
func (e *Engine) Get(key string) (string, bool) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.idx.Get(key)
	if !ok {
		return "", false
	}
	if ent.expired(now) {
		e.removeLocked(key, ent)
		telemetry.KeysExpiredTotal.Inc()
		e.publishStats()
		return "", false
	}

	ent.lastAccess = now
	e.lru.Touch(key)
	return ent.value, true
}

// Del removes key and reports whether it was present.
func (e *Engine) Del(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.idx.Get(key)
	if !ok {
		return false
	}
	e.removeLocked(key, ent)
	e.publishStats()
	return true
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.Len()
}

// Stats returns a snapshot of engine state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Keys:      e.idx.Len(),
		UsedBytes: e.used,
		MaxMemory: e.cfg.MaxMemory,
	}
}

// EvictExpired removes every entry whose TTL has passed and returns the
// number removed. The sweeper calls this once per interval; it holds the
// engine lock for the duration of the pass.
func (e *Engine) EvictExpired() int {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []string
	e.idx.Range(func(key string, ent *entry) bool {
		if ent.expired(now) {
			expired = append(expired, key)
		}
		return true
	})

	for _, key := range expired {
		ent, ok := e.idx.Get(key)
		if !ok {
			continue
		}
		e.removeLocked(key, ent)
		telemetry.KeysExpiredTotal.Inc()
	}

	if len(expired) > 0 {
		e.publishStats()
	}
	return len(expired)
}

// removeLocked drops one entry from the index, the LRU tracker and the
// byte counter. Callers hold e.mu.
func (e *Engine) removeLocked(key string, ent *entry) {
	e.used -= int64(len(key) + len(ent.value))
	e.idx.Remove(key)
	e.lru.Forget(key)
}

// enforceBudget evicts LRU keys until the counter is within budget.
// Callers hold e.mu.
func (e *Engine) enforceBudget() {
	for e.used > e.cfg.MaxMemory {
		key, ok := e.lru.EvictLRU()
		if !ok {
			break
		}
		ent, ok := e.idx.Get(key)
		if !ok {
			// The tracker and the index must hold the same key set;
			// a miss here means the engine state is corrupt.
			panic("store: LRU tracker holds key absent from index: " + key)
		}
		e.used -= int64(len(key) + len(ent.value))
		e.idx.Remove(key)
		telemetry.KeysEvictedTotal.Inc()
		e.log.Debug("evicted key over memory budget", "key", key)
	}
}

// publishStats pushes gauge values. Callers hold e.mu.
func (e *Engine) publishStats() {
	telemetry.KeysStored.Set(float64(e.idx.Len()))
	telemetry.MemoryUsedBytes.Set(float64(e.used))
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := e.EvictExpired(); n > 0 {
				e.log.Debug("ttl sweep removed keys", "count", n)
			}
		case <-e.done:
			return
		}
	}
}
