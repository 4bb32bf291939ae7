// Package lifecycle tracks every cell inside an observer's region of interest
// through unrequested, requested, drawable and needs-regen, spending a fixed
// budget of transitions per frame.
package lifecycle

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxstream/internal/meshing"
	"voxstream/internal/profiling"
	"voxstream/internal/scene"
	"voxstream/internal/world"
)

// DefaultUpdateCount is the per-frame transition budget.
const DefaultUpdateCount = 27

type State uint8

const (
	Unrequested State = iota
	Requested
	Drawable
	NeedsRegen
	numStates
)

func (s State) String() string {
	switch s {
	case Unrequested:
		return "unrequested"
	case Requested:
		return "requested"
	case Drawable:
		return "drawable"
	case NeedsRegen:
		return "needs-regen"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source is the part of a streaming manager the tracker drives.
type Source interface {
	Request(key world.CellKey, tier world.Tier) bool
	Cached(key world.CellKey, tier world.Tier) bool
	IsPending(key world.CellKey, tier world.Tier) bool
}

// Builder returns a mesh build function over a snapshot of the cached record at
// (key, tier), or false if nothing is cached there.
type Builder func(key world.CellKey, tier world.Tier) (func() (meshing.Mesh, error), bool)

// Submitter accepts mesh jobs without blocking.
type Submitter interface {
	Submit(job meshing.Job[Target]) bool
}

// Target identifies the cell a mesh job was built for. A result is only attached
// if the cell is still tracked as drawable with the same generation.
type Target struct {
	Kind       world.Kind
	Key        world.CellKey
	Tier       world.Tier
	Generation uint64
	// Supersedes is the entity to destroy once the new geometry is attached.
	Supersedes scene.EntityID
}

// Config tunes one tracker.
type Config struct {
	Radius      float32
	UpdateCount int
	Space       world.Space
	Bounds      world.Bounds
	Policy      TierPolicy
}

type entry struct {
	state      State
	tier       world.Tier
	entity     scene.EntityID
	generation uint64
}

// Counts is the number of tracked keys in each state.
type Counts struct {
	Unrequested, Requested, Drawable, NeedsRegen int
}

func (c Counts) Total() int {
	return c.Unrequested + c.Requested + c.Drawable + c.NeedsRegen
}

// Tracker is owned by the frame goroutine and is not safe for concurrent use.
type Tracker struct {
	kind    world.Kind
	cfg     Config
	src     Source
	build   Builder
	queue   Submitter
	scene   scene.Scene
	log     *zap.Logger
	prof    *profiling.Profiler
	entries map[world.CellKey]*entry
	sets    [numStates]*keySet
}

// New returns an empty tracker. prof may be nil.
func New(kind world.Kind, cfg Config, src Source, build Builder, queue Submitter, sc scene.Scene, log *zap.Logger, prof *profiling.Profiler) *Tracker {
	if cfg.UpdateCount <= 0 {
		cfg.UpdateCount = DefaultUpdateCount
	}
	t := &Tracker{
		kind:    kind,
		cfg:     cfg,
		src:     src,
		build:   build,
		queue:   queue,
		scene:   sc,
		log:     log.With(zap.Stringer("kind", kind)),
		prof:    prof,
		entries: make(map[world.CellKey]*entry),
	}
	for i := range t.sets {
		t.sets[i] = newKeySet()
	}
	return t
}

func (t *Tracker) Kind() world.Kind { return t.kind }

// SetBounds replaces the world extent used to bounds-check requests.
func (t *Tracker) SetBounds(b world.Bounds) { t.cfg.Bounds = b }

func (t *Tracker) Bounds() world.Bounds { return t.cfg.Bounds }

// SetRadius replaces the region-of-interest radius.
func (t *Tracker) SetRadius(r float32) { t.cfg.Radius = r }

func (t *Tracker) setState(k world.CellKey, e *entry, s State) {
	t.sets[e.state].remove(k)
	e.state = s
	t.sets[s].add(k)
}

// Update recomputes the region of interest around observer and then spends up to
// UpdateCount transitions: requests first, then mesh submissions for cells whose
// data has arrived, then regenerations.
func (t *Tracker) Update(observer mgl32.Vec3) {
	defer t.prof.Track("lifecycle.Update")()
	t.recompute(observer)
	t.requeueLost()

	requested := t.sets[Requested].keys()
	cursor := 0
	refused := false
	for budget := t.cfg.UpdateCount; budget > 0; budget-- {
		if !refused {
			if k, ok := t.sets[Unrequested].front(); ok {
				refused = !t.request(k)
				continue
			}
		}
		if k, ok := t.nextReady(requested, &cursor); ok {
			if !t.submit(k, Drawable) {
				return
			}
			continue
		}
		if k, ok := t.sets[NeedsRegen].front(); ok {
			if !t.regenerate(k) {
				return
			}
			continue
		}
		return
	}
}

// recompute adds in-range keys closest first and drops tracked keys that left
// the radius or the world.
func (t *Tracker) recompute(observer mgl32.Vec3) {
	space := t.cfg.Space
	for k, e := range t.entries {
		d := space.DistanceTo(observer, k)
		if d > t.cfg.Radius || !t.cfg.Bounds.Contains(k) {
			t.remove(k, e)
			continue
		}
		if want := t.cfg.Policy.TierFor(d); want != e.tier {
			t.retier(k, e, want)
		}
	}

	keys := space.KeysWithin(observer, t.cfg.Radius)
	type candidate struct {
		key  world.CellKey
		dist float32
	}
	fresh := make([]candidate, 0, len(keys))
	for _, k := range keys {
		if _, ok := t.entries[k]; ok || !t.cfg.Bounds.Contains(k) {
			continue
		}
		fresh = append(fresh, candidate{key: k, dist: space.DistanceTo(observer, k)})
	}
	slices.SortStableFunc(fresh, func(a, b candidate) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})
	for _, c := range fresh {
		e := &entry{state: Unrequested, tier: t.cfg.Policy.TierFor(c.dist)}
		t.entries[c.key] = e
		t.sets[Unrequested].add(c.key)
	}
}

// retier moves a cell to a new resolution. Existing geometry stays attached and
// is superseded when the new tier's mesh lands.
func (t *Tracker) retier(k world.CellKey, e *entry, want world.Tier) {
	e.tier = want
	if e.state != Unrequested {
		t.setState(k, e, Unrequested)
	}
}

// requeueLost returns requested keys whose request timed out to the unrequested set.
func (t *Tracker) requeueLost() {
	for _, k := range t.sets[Requested].keys() {
		e := t.entries[k]
		if !t.src.Cached(k, e.tier) && !t.src.IsPending(k, e.tier) {
			t.setState(k, e, Unrequested)
		}
	}
}

// request moves k to Requested. It returns false when the source refused the
// request; no further requests are issued in that Update.
func (t *Tracker) request(k world.CellKey) bool {
	e := t.entries[k]
	if !t.cfg.Bounds.Contains(k) {
		t.log.Debug("dropping out-of-bounds key", zap.Stringer("key", k))
		t.remove(k, e)
		return true
	}
	if t.src.Cached(k, e.tier) || t.src.IsPending(k, e.tier) {
		t.setState(k, e, Requested)
		return true
	}
	if !t.src.Request(k, e.tier) {
		// A cell still showing older geometry stays unrequested and keeps it.
		// Otherwise drop it; the next recompute adds it back.
		if e.entity == 0 {
			t.remove(k, e)
		}
		return false
	}
	t.setState(k, e, Requested)
	return true
}

// nextReady advances cursor through the requested snapshot to the next key whose data is cached.
func (t *Tracker) nextReady(requested []world.CellKey, cursor *int) (world.CellKey, bool) {
	for *cursor < len(requested) {
		k := requested[*cursor]
		*cursor++
		e, ok := t.entries[k]
		if !ok || e.state != Requested {
			continue
		}
		if t.src.Cached(k, e.tier) {
			return k, true
		}
	}
	return world.CellKey{}, false
}

// submit snapshots the cached record and queues its mesh job. It returns false
// when the mesh queue is full.
func (t *Tracker) submit(k world.CellKey, next State) bool {
	e := t.entries[k]
	fn, ok := t.build(k, e.tier)
	if !ok {
		t.setState(k, e, Unrequested)
		return true
	}
	target := Target{
		Kind:       t.kind,
		Key:        k,
		Tier:       e.tier,
		Generation: e.generation + 1,
		Supersedes: e.entity,
	}
	if !t.queue.Submit(meshing.Job[Target]{Target: target, Build: fn}) {
		return false
	}
	e.generation++
	t.setState(k, e, next)
	return true
}

func (t *Tracker) regenerate(k world.CellKey) bool {
	e := t.entries[k]
	if !t.src.Cached(k, e.tier) {
		t.setState(k, e, Unrequested)
		return true
	}
	return t.submit(k, Drawable)
}

// MarkNeedsRegen flags a drawable cell whose geometry is stale. Cells that are not
// drawable yet will mesh current data anyway and are left alone.
func (t *Tracker) MarkNeedsRegen(k world.CellKey) bool {
	e, ok := t.entries[k]
	if !ok || e.state != Drawable {
		return false
	}
	t.setState(k, e, NeedsRegen)
	return true
}

// Invalidate reacts to the cache dropping (k, tier): a cell that depended on that
// data goes back to unrequested.
func (t *Tracker) Invalidate(k world.CellKey, tier world.Tier) {
	e, ok := t.entries[k]
	if !ok || e.tier != tier || e.state == Unrequested {
		return
	}
	t.setState(k, e, Unrequested)
}

// Apply attaches a finished mesh if its target is still current. Results for cells
// that left the region, changed tier, or were resubmitted are discarded.
func (t *Tracker) Apply(target Target, m meshing.Mesh) bool {
	e, ok := t.entries[target.Key]
	if !ok || (e.state != Drawable && e.state != NeedsRegen) || e.generation != target.Generation || e.tier != target.Tier {
		t.log.Debug("discarding stale mesh",
			zap.Stringer("key", target.Key),
			zap.Stringer("tier", target.Tier),
			zap.Uint64("generation", target.Generation),
		)
		return false
	}
	var id scene.EntityID
	if !m.Empty() {
		id = t.scene.Attach(t.kind, target.Key, target.Tier, m)
	}
	if target.Supersedes != 0 {
		t.scene.Destroy(target.Supersedes)
	}
	e.entity = id
	return true
}

func (t *Tracker) remove(k world.CellKey, e *entry) {
	t.sets[e.state].remove(k)
	delete(t.entries, k)
	if e.entity != 0 {
		t.scene.Destroy(e.entity)
	}
}

// Clear forgets every tracked cell and destroys its geometry.
func (t *Tracker) Clear() {
	for k, e := range t.entries {
		t.remove(k, e)
	}
	for _, s := range t.sets {
		s.clear()
	}
}

// State returns the state of a tracked key.
func (t *Tracker) State(k world.CellKey) (State, bool) {
	e, ok := t.entries[k]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Tier returns the tier a tracked key is drawn at.
func (t *Tracker) Tier(k world.CellKey) (world.Tier, bool) {
	e, ok := t.entries[k]
	if !ok {
		return 0, false
	}
	return e.tier, true
}

// Entity returns the geometry currently attached for a key, or zero.
func (t *Tracker) Entity(k world.CellKey) scene.EntityID {
	if e, ok := t.entries[k]; ok {
		return e.entity
	}
	return 0
}

// Keys returns the keys in one state in the order they entered it.
func (t *Tracker) Keys(s State) []world.CellKey {
	return t.sets[s].keys()
}

func (t *Tracker) Counts() Counts {
	return Counts{
		Unrequested: t.sets[Unrequested].len(),
		Requested:   t.sets[Requested].len(),
		Drawable:    t.sets[Drawable].len(),
		NeedsRegen:  t.sets[NeedsRegen].len(),
	}
}
