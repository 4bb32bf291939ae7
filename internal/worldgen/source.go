package worldgen

import (
	"errors"
	"fmt"
	"sync"

	"voxstream/internal/protocol"
	"voxstream/internal/world"
)

var ErrOutOfBounds = errors.New("worldgen: cell outside world")

type voxelEdit struct {
	weight float32
	typ    int32
}

type blockEdit struct {
	typ, meta uint16
}

// Source samples a Field into records on demand. Edits made through SetVoxel
// and SetBlock overlay the generated full-resolution data. Safe for concurrent use.
type Source struct {
	field    Field
	space    world.Space
	bounds   world.Bounds
	seaLevel float64
	codec    *protocol.Codec

	mu     sync.RWMutex
	voxels map[world.CellKey]map[int]voxelEdit
	blocks map[world.CellKey]map[int]blockEdit
}

func NewSource(field Field, cellSize int, bounds world.Bounds, seaLevel float64, codec *protocol.Codec) *Source {
	return &Source{
		field:    field,
		space:    world.NewSpace(cellSize),
		bounds:   bounds,
		seaLevel: seaLevel,
		codec:    codec,
		voxels:   make(map[world.CellKey]map[int]voxelEdit),
		blocks:   make(map[world.CellKey]map[int]blockEdit),
	}
}

func (s *Source) Meta() protocol.WorldMetaMsg {
	return protocol.NewWorldMeta(s.bounds, s.space.CellSize)
}

// Chunk generates and encodes the record of kind at (key, tier).
func (s *Source) Chunk(kind world.Kind, key world.CellKey, tier world.Tier) (protocol.ChunkDataMsg, error) {
	if !s.bounds.Contains(key) {
		return protocol.ChunkDataMsg{}, fmt.Errorf("%w: %v", ErrOutOfBounds, key)
	}
	switch kind {
	case world.KindTerrain:
		rec, err := s.Terrain(key, tier)
		if err != nil {
			return protocol.ChunkDataMsg{}, err
		}
		return s.codec.EncodeTerrain(key, rec, false), nil
	case world.KindFluid:
		rec, err := s.Fluid(key, tier)
		if err != nil {
			return protocol.ChunkDataMsg{}, err
		}
		return s.codec.EncodeFluid(key, rec, false), nil
	case world.KindBlock:
		rec, err := s.Block(key, tier)
		if err != nil {
			return protocol.ChunkDataMsg{}, err
		}
		return s.codec.EncodeBlock(key, rec, false), nil
	}
	return protocol.ChunkDataMsg{}, fmt.Errorf("%w: %v", protocol.ErrUnknownKind, kind)
}

// sampler walks a cubic grid of dim samples spaced step world units apart,
// starting offset samples before the cell origin.
type sampler struct {
	ox, oy, oz float64
	step       float64
	dim        int
	offset     float64
}

func (s *Source) sampler(key world.CellKey, dim int, step, offset float64) sampler {
	o := s.space.Origin(key)
	return sampler{ox: float64(o.X()), oy: float64(o.Y()), oz: float64(o.Z()), step: step, dim: dim, offset: offset}
}

func (sm sampler) each(fn func(i int, x, y, z float64)) {
	n := sm.dim
	for z := range n {
		for y := range n {
			for x := range n {
				fn(world.GridIndex(n, x, y, z),
					sm.ox+(float64(x)+sm.offset)*sm.step,
					sm.oy+(float64(y)+sm.offset)*sm.step,
					sm.oz+(float64(z)+sm.offset)*sm.step)
			}
		}
	}
}

// voxelSize is the spacing of full-resolution terrain samples.
func (s *Source) voxelSize() float64 { return float64(s.space.CellSize) / 16 }

func (s *Source) Terrain(key world.CellKey, tier world.Tier) (*world.TerrainChunk, error) {
	n := world.TerrainDim(tier)
	types := make([]int32, n*n*n)
	weights := make([]float32, n*n*n)
	s.sampler(key, n, s.voxelSize()*float64(tier.Stride()), 0).each(func(i int, x, y, z float64) {
		d := s.field.Density(x, y, z)
		weights[i] = float32(d)
		if d > 0 {
			types[i] = int32(materialAt(y, s.field.Height(x, z), s.seaLevel))
		}
	})
	if tier == world.TierFull {
		s.mu.RLock()
		for i, ed := range s.voxels[key] {
			weights[i], types[i] = ed.weight, ed.typ
		}
		s.mu.RUnlock()
	}
	if v, ok := uniformTerrain(types, weights); ok {
		return world.NewHomogeneousTerrain(tier, v), nil
	}
	return world.NewTerrain(tier, types, weights)
}

func uniformTerrain(types []int32, weights []float32) (int32, bool) {
	t0 := types[0]
	w0 := float32(1)
	if t0 == Air {
		w0 = -1
	}
	for i := range types {
		if types[i] != t0 || weights[i] != w0 {
			return 0, false
		}
	}
	return t0, true
}

// Fluid fills open space below sea level. The grid carries one sample of
// border on each side.
func (s *Source) Fluid(key world.CellKey, tier world.Tier) (*world.FluidChunk, error) {
	n := world.FluidDim(tier)
	weights := make([]float32, n*n*n)
	s.sampler(key, n, s.voxelSize()*float64(tier.Stride()), -1).each(func(i int, x, y, z float64) {
		weights[i] = world.FluidEmpty
		if y < s.seaLevel && s.field.Density(x, y, z) <= 0 {
			weights[i] = 1
		}
	})
	w0 := weights[0]
	for _, w := range weights {
		if w != w0 {
			return world.NewFluid(tier, weights)
		}
	}
	return world.NewHomogeneousFluid(tier, w0), nil
}

// Block samples block centres; a cell holds BlockSamples blocks per axis at full resolution.
func (s *Source) Block(key world.CellKey, tier world.Tier) (*world.BlockChunk, error) {
	n := world.BlockDim(tier)
	types := make([]uint16, n*n*n)
	meta := make([]uint16, n*n*n)
	step := float64(s.space.CellSize) / world.BlockSamples * float64(tier.Stride())
	s.sampler(key, n, step, 0.5).each(func(i int, x, y, z float64) {
		if s.field.Density(x, y, z) > 0 {
			types[i] = uint16(materialAt(y, s.field.Height(x, z), s.seaLevel))
		}
	})
	if tier == world.TierFull {
		s.mu.RLock()
		for i, ed := range s.blocks[key] {
			types[i], meta[i] = ed.typ, ed.meta
		}
		s.mu.RUnlock()
	}
	t0 := types[0]
	for i := range types {
		if types[i] != t0 || meta[i] != 0 {
			return world.NewBlocks(tier, types, meta)
		}
	}
	return world.NewHomogeneousBlocks(tier, t0), nil
}

// SetVoxel overrides one full-resolution terrain sample and returns the update
// to broadcast.
func (s *Source) SetVoxel(key world.CellKey, x, y, z int, weight float32, typ int32) (protocol.VoxelUpdateMsg, error) {
	n := world.TerrainDim(world.TierFull)
	if !world.InGrid(n, x, y, z) {
		return protocol.VoxelUpdateMsg{}, fmt.Errorf("voxel (%d,%d,%d) outside terrain grid", x, y, z)
	}
	if !s.bounds.Contains(key) {
		return protocol.VoxelUpdateMsg{}, fmt.Errorf("%w: %v", ErrOutOfBounds, key)
	}
	s.mu.Lock()
	m := s.voxels[key]
	if m == nil {
		m = make(map[int]voxelEdit)
		s.voxels[key] = m
	}
	m[world.GridIndex(n, x, y, z)] = voxelEdit{weight: weight, typ: typ}
	s.mu.Unlock()

	return protocol.VoxelUpdateMsg{
		Type:            protocol.TypeVoxelUpdate,
		ProtocolVersion: protocol.Version,
		WorldX:          key.X,
		WorldY:          key.Y,
		WorldZ:          key.Z,
		VoxelX:          x,
		VoxelY:          y,
		VoxelZ:          z,
		Weight:          weight,
		VoxelType:       typ,
	}, nil
}

// SetBlock overrides one full-resolution block and returns the update to broadcast.
func (s *Source) SetBlock(key world.CellKey, x, y, z int, typ, meta uint16) (protocol.BlockUpdateMsg, error) {
	n := world.BlockDim(world.TierFull)
	if !world.InGrid(n, x, y, z) {
		return protocol.BlockUpdateMsg{}, fmt.Errorf("block (%d,%d,%d) outside block grid", x, y, z)
	}
	if !s.bounds.Contains(key) {
		return protocol.BlockUpdateMsg{}, fmt.Errorf("%w: %v", ErrOutOfBounds, key)
	}
	s.mu.Lock()
	m := s.blocks[key]
	if m == nil {
		m = make(map[int]blockEdit)
		s.blocks[key] = m
	}
	m[world.GridIndex(n, x, y, z)] = blockEdit{typ: typ, meta: meta}
	s.mu.Unlock()

	return protocol.BlockUpdateMsg{
		Type:            protocol.TypeBlockUpdate,
		ProtocolVersion: protocol.Version,
		WorldX:          key.X,
		WorldY:          key.Y,
		WorldZ:          key.Z,
		VoxelX:          x,
		VoxelY:          y,
		VoxelZ:          z,
		BlockType:       typ,
		Metadata:        meta,
	}, nil
}
