// Package cache holds the per-kind resolution cache: five tier maps sharing one
// capacity budget and one insertion-ordered eviction list.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"voxstream/internal/world"
)

// Entry is one cached record with its address.
type Entry[C any] struct {
	Key  world.CellKey
	Tier world.Tier
	Cell C
}

type slot struct {
	key  world.CellKey
	tier world.Tier
}

// Cache stores records of one kind. A single budget of capacity records is shared
// by all five tiers; when it is exceeded the oldest inserted slot is evicted,
// whichever tier it belongs to. Re-inserting an existing slot overwrites its record
// and counts as a fresh insert for eviction order.
type Cache[C world.Cell[C]] struct {
	mu        sync.Mutex
	capacity  int
	tiers     [world.NumTiers]map[world.CellKey]C
	order     *list.List // of slot, oldest first
	slots     map[slot]*list.Element
	positions map[C]world.CellKey
	modCount  uint64
}

// New returns an empty cache. capacity must be positive.
func New[C world.Cell[C]](capacity int) *Cache[C] {
	if capacity <= 0 {
		panic(fmt.Sprintf("cache: capacity must be positive, got %d", capacity))
	}
	c := &Cache[C]{
		capacity:  capacity,
		order:     list.New(),
		slots:     make(map[slot]*list.Element),
		positions: make(map[C]world.CellKey),
	}
	for i := range c.tiers {
		c.tiers[i] = make(map[world.CellKey]C)
	}
	return c
}

// Capacity returns the shared record budget.
func (c *Cache[C]) Capacity() int { return c.capacity }

// Insert stores cell at (key, tier) and returns the entries evicted to stay within capacity.
func (c *Cache[C]) Insert(key world.CellKey, tier world.Tier, cell C) []Entry[C] {
	if !tier.Valid() {
		panic(fmt.Sprintf("cache: invalid tier %d", tier))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := slot{key: key, tier: tier}
	m := c.tiers[tier]
	if el, ok := c.slots[s]; ok {
		if old := m[key]; old != cell {
			c.forgetPosition(old, key)
		}
		c.order.MoveToBack(el)
	} else {
		c.slots[s] = c.order.PushBack(s)
	}
	m[key] = cell
	c.positions[cell] = key
	c.modCount++

	var evicted []Entry[C]
	for c.order.Len() > c.capacity {
		front := c.order.Front()
		old := front.Value.(slot)
		evicted = append(evicted, c.removeLocked(front, old))
	}
	c.checkLocked()
	return evicted
}

func (c *Cache[C]) removeLocked(el *list.Element, s slot) Entry[C] {
	c.order.Remove(el)
	delete(c.slots, s)
	m := c.tiers[s.tier]
	cell := m[s.key]
	delete(m, s.key)
	c.forgetPosition(cell, s.key)
	return Entry[C]{Key: s.key, Tier: s.tier, Cell: cell}
}

func (c *Cache[C]) forgetPosition(cell C, key world.CellKey) {
	if k, ok := c.positions[cell]; ok && k == key {
		delete(c.positions, cell)
	}
}

// checkLocked panics if the capacity invariant is broken. Continuing would hide unbounded growth.
func (c *Cache[C]) checkLocked() {
	total := 0
	for t, m := range c.tiers {
		if len(m) > c.capacity {
			panic(fmt.Sprintf("cache: tier %s holds %d records, capacity %d", world.Tier(t), len(m), c.capacity))
		}
		total += len(m)
	}
	if total > c.capacity || total != c.order.Len() {
		panic(fmt.Sprintf("cache: %d records, %d ordered slots, capacity %d", total, c.order.Len(), c.capacity))
	}
}

// Contains reports whether a record is cached at (key, tier).
func (c *Cache[C]) Contains(key world.CellKey, tier world.Tier) bool {
	if !tier.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tiers[tier][key]
	return ok
}

// Get returns the record cached at (key, tier). The record is shared, not copied.
func (c *Cache[C]) Get(key world.CellKey, tier world.Tier) (C, bool) {
	var zero C
	if !tier.Valid() {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.tiers[tier][key]
	return cell, ok
}

// Clone returns a deep copy of the record at (key, tier), taken under the cache lock.
func (c *Cache[C]) Clone(key world.CellKey, tier world.Tier) (C, bool) {
	var zero C
	if !tier.Valid() {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.tiers[tier][key]
	if !ok {
		return zero, false
	}
	return cell.Clone(), true
}

// PositionOf returns the key a record is cached under.
func (c *Cache[C]) PositionOf(cell C) (world.CellKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.positions[cell]
	return k, ok
}

// Update runs fn on the record at (key, tier) while holding the cache lock.
// It reports whether a record was found.
func (c *Cache[C]) Update(key world.CellKey, tier world.Tier, fn func(C)) bool {
	if !tier.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.tiers[tier][key]
	if !ok {
		return false
	}
	fn(cell)
	c.modCount++
	return true
}

// EvictAll empties every tier and returns how many records were dropped.
func (c *Cache[C]) EvictAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.order.Len()
	for i := range c.tiers {
		c.tiers[i] = make(map[world.CellKey]C)
	}
	c.order.Init()
	c.slots = make(map[slot]*list.Element)
	c.positions = make(map[C]world.CellKey)
	c.modCount++
	return n
}

// Len returns the total number of cached records across tiers.
func (c *Cache[C]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// LenTier returns the number of records cached at one tier.
func (c *Cache[C]) LenTier(tier world.Tier) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiers[tier])
}

// ModCount increases on every insert, update and eviction.
func (c *Cache[C]) ModCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modCount
}

// Entries returns the entries cached at one tier, oldest insert first.
func (c *Cache[C]) Entries(tier world.Tier) []Entry[C] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry[C], 0, len(c.tiers[tier]))
	for el := c.order.Front(); el != nil; el = el.Next() {
		s := el.Value.(slot)
		if s.tier == tier {
			out = append(out, Entry[C]{Key: s.key, Tier: s.tier, Cell: c.tiers[tier][s.key]})
		}
	}
	return out
}
