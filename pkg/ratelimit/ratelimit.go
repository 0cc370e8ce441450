// Package ratelimit implements per-player token-bucket throttling for
// blocks, chat, and script events, plus the shared-shape cooldown used
// by the /save command. See SPEC_FULL.md [MODULE ratelimit]. Grounded on
// spec.md §5's bucket rates and the teacher's Server-level mutex-guarded
// map idiom, generalized from a single map to one bucket set per
// concern.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default bucket shapes, per spec.md §5.
var (
	BlocksRate  = rate.Limit(70)
	BlocksBurst = 140

	ChatRate  = rate.Limit(0.8)
	ChatBurst = 3 // ceil(2.4)

	ScriptEventRate  = rate.Limit(20)
	ScriptEventBurst = 40
)

// Buckets is one player's set of independent limiters.
type Buckets struct {
	Blocks       *rate.Limiter
	Chat         *rate.Limiter
	ScriptEvents *rate.Limiter
}

// NewBuckets creates a bucket set at the default spec.md §5 shapes.
func NewBuckets() *Buckets {
	return &Buckets{
		Blocks:       rate.NewLimiter(BlocksRate, BlocksBurst),
		Chat:         rate.NewLimiter(ChatRate, ChatBurst),
		ScriptEvents: rate.NewLimiter(ScriptEventRate, ScriptEventBurst),
	}
}

// Registry tracks one Buckets set per player key (peer ID or name),
// created lazily on first touch.
type Registry struct {
	mu      sync.Mutex
	buckets map[uint32]*Buckets
}

// NewRegistry creates an empty per-player bucket registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[uint32]*Buckets)}
}

// For returns key's bucket set, creating it on first access.
func (r *Registry) For(key uint32) *Buckets {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		b = NewBuckets()
		r.buckets[key] = b
	}
	return b
}

// Forget drops key's bucket set, e.g. on disconnect.
func (r *Registry) Forget(key uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key)
}

// Cooldown is a simple last-fired-at gate, used for the /save command's
// 10-second-per-world throttle (spec.md §4.4's "via a ban-record trick"
// is a persistence detail of the original; here it's tracked in-memory
// per world instead, since the effect — one /save per world per window —
// is the same without needing a throwaway ban record).
type Cooldown struct {
	mu       sync.Mutex
	window   time.Duration
	lastFire map[string]time.Time
}

// NewCooldown creates a cooldown gate with the given minimum interval
// between fires for the same key.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, lastFire: make(map[string]time.Time)}
}

// Allow reports whether key may fire now, and if so records the fire time.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastFire[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.lastFire[key] = now
	return true
}
