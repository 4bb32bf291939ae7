// Package engine owns the three data-kind streams (terrain, fluid, block) of one
// client and advances them once per frame: install arrived chunks, apply edits,
// walk the cell lifecycles and attach finished meshes to the scene.
package engine

import (
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxstream/internal/cache"
	"voxstream/internal/config"
	"voxstream/internal/lifecycle"
	"voxstream/internal/meshing"
	"voxstream/internal/profiling"
	"voxstream/internal/protocol"
	"voxstream/internal/scene"
	"voxstream/internal/streaming"
	"voxstream/internal/world"
)

var ErrNotConnected = errors.New("engine: no sender attached")

// stream pairs the manager and the tracker of one kind.
type stream[C world.Cell[C]] struct {
	mgr     *streaming.Manager[C]
	tracker *lifecycle.Tracker
}

func newStream[C world.Cell[C]](e *Engine, kind world.Kind, sc config.StreamConfig, mesh func(C, float32, mgl32.Vec3) meshing.Mesh) *stream[C] {
	s := &stream[C]{}
	s.mgr = streaming.NewManager(kind, streaming.Config{
		MaxConcurrentRequests:  sc.MaxConcurrentRequests,
		FailedRequestThreshold: sc.FailedRequestThreshold,
	}, cache.New[C](sc.CacheCapacity), e, e.log, e.prof)

	space := e.space
	build := func(key world.CellKey, tier world.Tier) (func() (meshing.Mesh, error), bool) {
		snap, ok := s.mgr.Snapshot(key, tier)
		if !ok {
			return nil, false
		}
		origin := space.Origin(key)
		size := float32(space.CellSize)
		return func() (meshing.Mesh, error) {
			return mesh(snap, size, origin), nil
		}, true
	}
	s.tracker = lifecycle.New(kind, lifecycle.Config{
		Radius:      sc.RadiusCells * float32(space.CellSize),
		UpdateCount: sc.UpdateCount,
		Space:       space,
		Bounds:      world.Bounds{DiscreteSize: e.cfg.World.DiscreteSize},
		Policy:      lifecycle.CellThresholds(space.CellSize, sc.TierThresholds...),
	}, s.mgr, build, e.queue, e.scene, e.log, e.prof)
	return s
}

// pump installs arrived responses and reconciles the tracker with what changed.
func (s *stream[C]) pump() (installed, evicted int) {
	res := s.mgr.Pump()
	for _, ev := range res.Evicted {
		s.tracker.Invalidate(ev.Key, ev.Tier)
	}
	for _, in := range res.Installed {
		if !in.Update {
			continue
		}
		if tier, ok := s.tracker.Tier(in.Key); ok && tier == in.Tier {
			s.tracker.MarkNeedsRegen(in.Key)
		}
	}
	return len(res.Installed), len(res.Evicted)
}

func (s *stream[C]) status() KindStatus {
	return KindStatus{
		Kind:        s.mgr.Kind(),
		Cached:      s.mgr.Cache().Len(),
		Outstanding: s.mgr.Outstanding(),
		Cells:       s.tracker.Counts(),
		Requests:    s.mgr.Stats(),
	}
}

// Engine is driven by one frame goroutine. HandleMessage may be called from the
// network goroutine at any time.
type Engine struct {
	cfg   *config.Config
	log   *zap.Logger
	prof  *profiling.Profiler
	space world.Space
	scene scene.Scene
	codec *protocol.Codec
	queue *meshing.Queue[lifecycle.Target]

	terrain *stream[*world.TerrainChunk]
	fluid   *stream[*world.FluidChunk]
	block   *stream[*world.BlockChunk]

	sender            streaming.Sender
	onTerrainReplaced func(key world.CellKey, old *world.TerrainChunk)

	mu     sync.Mutex
	events []any
}

// New builds an engine attaching geometry to sc. prof may be nil.
func New(cfg *config.Config, sc scene.Scene, log *zap.Logger, prof *profiling.Profiler) (*Engine, error) {
	codec, err := protocol.NewCodec()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		log:   log,
		prof:  prof,
		space: world.NewSpace(cfg.World.CellSize),
		scene: sc,
		codec: codec,
		queue: meshing.NewQueue[lifecycle.Target](cfg.Meshing.Workers, cfg.Meshing.QueueSize, log),
	}
	e.terrain = newStream(e, world.KindTerrain, cfg.Streams.Terrain, meshing.TerrainMesh)
	e.fluid = newStream(e, world.KindFluid, cfg.Streams.Fluid, meshing.FluidMesh)
	e.block = newStream(e, world.KindBlock, cfg.Streams.Block, meshing.BlockMesh)

	e.terrain.mgr.OnReplace(func(key world.CellKey, old *world.TerrainChunk) {
		if fn := e.onTerrainReplaced; fn != nil {
			fn(key, old)
		}
		e.fluid.tracker.MarkNeedsRegen(key)
	})
	return e, nil
}

// Connect attaches the outbound side. Requests fail with ErrNotConnected until then.
func (e *Engine) Connect(s streaming.Sender) { e.sender = s }

// SendRequest forwards a manager's request to the attached sender.
func (e *Engine) SendRequest(kind world.Kind, key world.CellKey, tier world.Tier) error {
	if e.sender == nil {
		return ErrNotConnected
	}
	return e.sender.SendRequest(kind, key, tier)
}

// OnTerrainReplaced registers fn to see the previous full-resolution terrain record
// whenever a newer one replaces it. Runs on the frame goroutine.
func (e *Engine) OnTerrainReplaced(fn func(key world.CellKey, old *world.TerrainChunk)) {
	e.onTerrainReplaced = fn
}

func (e *Engine) Space() world.Space { return e.space }

// Tracker returns the lifecycle tracker of kind.
func (e *Engine) Tracker(kind world.Kind) *lifecycle.Tracker {
	switch kind {
	case world.KindFluid:
		return e.fluid.tracker
	case world.KindBlock:
		return e.block.tracker
	default:
		return e.terrain.tracker
	}
}

func (e *Engine) Terrain() *streaming.Manager[*world.TerrainChunk] { return e.terrain.mgr }
func (e *Engine) Fluid() *streaming.Manager[*world.FluidChunk]     { return e.fluid.mgr }
func (e *Engine) Block() *streaming.Manager[*world.BlockChunk]     { return e.block.mgr }

// FrameStats summarises one Frame.
type FrameStats struct {
	Installed int
	Evicted   int
	Edits     int
	Attached  int
}

// Frame advances every stream by one step around observer.
func (e *Engine) Frame(observer mgl32.Vec3) FrameStats {
	defer e.prof.Track("engine.Frame")()
	var st FrameStats

	for _, pump := range []func() (int, int){e.terrain.pump, e.fluid.pump, e.block.pump} {
		in, ev := pump()
		st.Installed += in
		st.Evicted += ev
	}
	st.Edits = e.applyEvents()

	e.terrain.tracker.Update(observer)
	e.fluid.tracker.Update(observer)
	e.block.tracker.Update(observer)

	for target, m := range e.queue.DrainCompleted() {
		if e.Tracker(target.Kind).Apply(target, m) {
			st.Attached++
		}
	}
	return st
}

// KindStatus is a point-in-time view of one stream.
type KindStatus struct {
	Kind        world.Kind
	Cached      int
	Outstanding int
	Cells       lifecycle.Counts
	Requests    streaming.Stats
}

func (e *Engine) Status() []KindStatus {
	return []KindStatus{e.terrain.status(), e.fluid.status(), e.block.status()}
}

// PendingMeshes is the number of queued or running mesh jobs.
func (e *Engine) PendingMeshes() int { return e.queue.Pending() }

// EvictAll forgets every record, outstanding request, tracked cell and entity,
// as on a teleport or world unload. Meshes still in flight are discarded on arrival.
func (e *Engine) EvictAll() {
	e.mu.Lock()
	e.events = nil
	e.mu.Unlock()

	e.terrain.mgr.EvictAll()
	e.fluid.mgr.EvictAll()
	e.block.mgr.EvictAll()
	e.terrain.tracker.Clear()
	e.fluid.tracker.Clear()
	e.block.tracker.Clear()
}

// Shutdown stops the mesh workers. The engine must not be used afterwards.
func (e *Engine) Shutdown() {
	e.queue.Shutdown()
	e.codec.Close()
}
