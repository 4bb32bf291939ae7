// Package streaming issues deduplicated chunk requests for one data kind, ages
// outstanding requests, and installs arriving responses into a resolution cache.
package streaming

import (
	"sync"

	"go.uber.org/zap"

	"voxstream/internal/cache"
	"voxstream/internal/profiling"
	"voxstream/internal/world"
)

const (
	DefaultMaxConcurrentRequests  = 500
	DefaultFailedRequestThreshold = 500
)

// Sender hands a chunk request to the network. It must not block; a full or
// closed outbound queue is reported as an error.
type Sender interface {
	SendRequest(kind world.Kind, key world.CellKey, tier world.Tier) error
}

// Response is one arrived chunk, queued until the next Pump.
type Response[C any] struct {
	Key  world.CellKey
	Tier world.Tier
	Cell C
	// Update marks a server-pushed replacement of data the client already holds.
	Update bool
}

// Config tunes one manager.
type Config struct {
	MaxConcurrentRequests  int
	FailedRequestThreshold int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.FailedRequestThreshold <= 0 {
		c.FailedRequestThreshold = DefaultFailedRequestThreshold
	}
	return c
}

// Stats are cumulative counters for periodic reporting.
type Stats struct {
	Sent, Deduplicated, Capped, SendFailed, TimedOut, Received int
}

type pendingKey struct {
	key  world.CellKey
	tier world.Tier
}

// Manager owns the cache, the inbound queue and the outstanding-request table of one kind.
// Enqueue may be called from the network goroutine; everything else runs on the frame goroutine.
type Manager[C world.Cell[C]] struct {
	kind   world.Kind
	cfg    Config
	log    *zap.Logger
	prof   *profiling.Profiler
	sender Sender
	cache  *cache.Cache[C]

	mu        sync.Mutex
	pending   map[pendingKey]int // age in ticks
	inbox     []Response[C]
	stats     Stats
	onReplace func(key world.CellKey, old C)
}

// NewManager builds a manager over c. prof may be nil.
func NewManager[C world.Cell[C]](kind world.Kind, cfg Config, c *cache.Cache[C], sender Sender, log *zap.Logger, prof *profiling.Profiler) *Manager[C] {
	return &Manager[C]{
		kind:    kind,
		cfg:     cfg.withDefaults(),
		log:     log.With(zap.Stringer("kind", kind)),
		prof:    prof,
		sender:  sender,
		cache:   c,
		pending: make(map[pendingKey]int),
	}
}

func (m *Manager[C]) Kind() world.Kind { return m.kind }

// Cache exposes the underlying resolution cache.
func (m *Manager[C]) Cache() *cache.Cache[C] { return m.cache }

// OnReplace registers fn to run when a full-resolution response arrives for a key
// that already holds full-resolution data. fn sees the old record before it is
// overwritten and runs without any manager lock held.
func (m *Manager[C]) OnReplace(fn func(key world.CellKey, old C)) {
	m.mu.Lock()
	m.onReplace = fn
	m.mu.Unlock()
}

// Request sends a request for (key, tier) unless one is already outstanding or the
// concurrency ceiling is reached. It reports whether a message was actually sent.
func (m *Manager[C]) Request(key world.CellKey, tier world.Tier) bool {
	if !tier.Valid() {
		return false
	}
	pk := pendingKey{key: key, tier: tier}

	m.mu.Lock()
	if _, ok := m.pending[pk]; ok {
		m.stats.Deduplicated++
		m.mu.Unlock()
		return false
	}
	if len(m.pending) >= m.cfg.MaxConcurrentRequests {
		m.stats.Capped++
		m.mu.Unlock()
		return false
	}
	m.pending[pk] = 0
	m.mu.Unlock()

	if err := m.sender.SendRequest(m.kind, key, tier); err != nil {
		// roll back so the slot stays requestable
		m.mu.Lock()
		delete(m.pending, pk)
		m.stats.SendFailed++
		m.mu.Unlock()
		m.log.Debug("request not sent", zap.Stringer("key", key), zap.Stringer("tier", tier), zap.Error(err))
		return false
	}

	m.mu.Lock()
	m.stats.Sent++
	m.mu.Unlock()
	return true
}

// Enqueue queues an arrived response. Safe to call from any goroutine; it never
// touches the cache or the outstanding table.
func (m *Manager[C]) Enqueue(r Response[C]) {
	m.mu.Lock()
	m.inbox = append(m.inbox, r)
	m.mu.Unlock()
}

// Installed describes one response applied by Pump.
type Installed struct {
	Key      world.CellKey
	Tier     world.Tier
	Update   bool
	Replaced bool
}

// PumpResult lists what one Pump changed.
type PumpResult[C any] struct {
	Installed []Installed
	Evicted   []cache.Entry[C]
}

// Pump applies every queued response in arrival order, then ages outstanding
// requests by one tick. Frame goroutine only: the replaced-record check and the
// insert are separate steps, so Pump must not race Edit, EvictAll or another Pump.
func (m *Manager[C]) Pump() PumpResult[C] {
	defer m.prof.Track("streaming.Pump")()
	m.mu.Lock()
	inbox := m.inbox
	m.inbox = nil
	hook := m.onReplace
	m.mu.Unlock()

	var res PumpResult[C]
	for _, r := range inbox {
		replaced := false
		if r.Tier == world.TierFull {
			if old, ok := m.cache.Get(r.Key, world.TierFull); ok {
				replaced = true
				if hook != nil {
					hook(r.Key, old)
				}
			}
		}
		m.mu.Lock()
		evicted := m.cache.Insert(r.Key, r.Tier, r.Cell)
		delete(m.pending, pendingKey{key: r.Key, tier: r.Tier})
		m.stats.Received++
		m.mu.Unlock()

		res.Installed = append(res.Installed, Installed{Key: r.Key, Tier: r.Tier, Update: r.Update, Replaced: replaced})
		res.Evicted = append(res.Evicted, evicted...)
	}
	m.Tick()
	return res
}

// Tick ages every outstanding request. A request whose age passes
// FailedRequestThreshold is forgotten and may be issued again.
func (m *Manager[C]) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pk, age := range m.pending {
		age++
		if age > m.cfg.FailedRequestThreshold {
			delete(m.pending, pk)
			m.stats.TimedOut++
			m.log.Debug("request timed out", zap.Stringer("key", pk.key), zap.Stringer("tier", pk.tier))
			continue
		}
		m.pending[pk] = age
	}
}

// IsPending reports whether a request for (key, tier) is outstanding.
func (m *Manager[C]) IsPending(key world.CellKey, tier world.Tier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[pendingKey{key: key, tier: tier}]
	return ok
}

// Outstanding returns the number of outstanding requests.
func (m *Manager[C]) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager[C]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Cached reports whether (key, tier) has data.
func (m *Manager[C]) Cached(key world.CellKey, tier world.Tier) bool {
	return m.cache.Contains(key, tier)
}

// Get returns the cached record at (key, tier).
func (m *Manager[C]) Get(key world.CellKey, tier world.Tier) (C, bool) {
	return m.cache.Get(key, tier)
}

// Snapshot returns a deep copy of the cached record, safe to hand to another goroutine.
func (m *Manager[C]) Snapshot(key world.CellKey, tier world.Tier) (C, bool) {
	return m.cache.Clone(key, tier)
}

// Edit applies fn to the cached record at (key, tier) in place.
func (m *Manager[C]) Edit(key world.CellKey, tier world.Tier, fn func(C)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Update(key, tier, fn)
}

// EvictAll drops every cached record, queued response and outstanding request.
func (m *Manager[C]) EvictAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.cache.EvictAll()
	dropped := len(m.pending)
	clear(m.pending)
	m.inbox = nil
	m.log.Info("evicted all", zap.Int("records", n), zap.Int("pending", dropped))
}
