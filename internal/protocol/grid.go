package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"voxstream/internal/world"
)

// maxGridBytes bounds a decompressed payload: the largest grid is a full block chunk.
const maxGridBytes = 8 << 20

// Codec packs record grids little-endian and compresses them with zstd.
// Safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxGridBytes))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

func chunkHeader(kind world.Kind, key world.CellKey, tier world.Tier, update bool) ChunkDataMsg {
	return ChunkDataMsg{
		Type:            TypeChunkData,
		ProtocolVersion: Version,
		Kind:            kind.String(),
		WorldX:          key.X,
		WorldY:          key.Y,
		WorldZ:          key.Z,
		Stride:          tier.Stride(),
		Update:          update,
	}
}

func homogeneous(v float64) *float64 { return &v }

// EncodeTerrain packs weights then types.
func (c *Codec) EncodeTerrain(key world.CellKey, r *world.TerrainChunk, update bool) ChunkDataMsg {
	m := chunkHeader(world.KindTerrain, key, r.Tier(), update)
	if v, ok := r.Homogeneous(); ok {
		m.Homogeneous = homogeneous(float64(v))
		return m
	}
	ws, ts := r.Weights(), r.Types()
	buf := make([]byte, 0, 4*(len(ws)+len(ts)))
	buf = appendFloats(buf, ws)
	for _, t := range ts {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(t))
	}
	m.Data = c.enc.EncodeAll(buf, nil)
	return m
}

// EncodeFluid packs weights.
func (c *Codec) EncodeFluid(key world.CellKey, r *world.FluidChunk, update bool) ChunkDataMsg {
	m := chunkHeader(world.KindFluid, key, r.Tier(), update)
	if v, ok := r.Homogeneous(); ok {
		m.Homogeneous = homogeneous(float64(v))
		return m
	}
	ws := r.Weights()
	m.Data = c.enc.EncodeAll(appendFloats(make([]byte, 0, 4*len(ws)), ws), nil)
	return m
}

// EncodeBlock packs types then metadata.
func (c *Codec) EncodeBlock(key world.CellKey, r *world.BlockChunk, update bool) ChunkDataMsg {
	m := chunkHeader(world.KindBlock, key, r.Tier(), update)
	if v, ok := r.Homogeneous(); ok {
		m.Homogeneous = homogeneous(float64(v))
		return m
	}
	ts, md := r.Types(), r.Metadata()
	buf := make([]byte, 0, 2*(len(ts)+len(md)))
	for _, t := range ts {
		buf = binary.LittleEndian.AppendUint16(buf, t)
	}
	for _, v := range md {
		buf = binary.LittleEndian.AppendUint16(buf, v)
	}
	m.Data = c.enc.EncodeAll(buf, nil)
	return m
}

func appendFloats(buf []byte, fs []float32) []byte {
	for _, f := range fs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func (c *Codec) unpack(m ChunkDataMsg, want int) ([]byte, error) {
	raw, err := c.dec.DecodeAll(m.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadGrid, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrBadGrid, m.Kind, len(raw), want)
	}
	return raw, nil
}

func (c *Codec) DecodeTerrain(m ChunkDataMsg) (*world.TerrainChunk, error) {
	kind, _, tier, err := m.Target()
	if err != nil {
		return nil, err
	}
	if kind != world.KindTerrain {
		return nil, fmt.Errorf("%w: %s is not terrain", ErrUnknownKind, kind)
	}
	if m.Homogeneous != nil {
		v, err := homogeneousID(*m.Homogeneous, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return world.NewHomogeneousTerrain(tier, int32(v)), nil
	}
	n := cube(world.TerrainDim(tier))
	raw, err := c.unpack(m, 8*n)
	if err != nil {
		return nil, err
	}
	weights := readFloats(raw[:4*n])
	types := make([]int32, n)
	for i := range types {
		types[i] = int32(binary.LittleEndian.Uint32(raw[4*n+4*i:]))
	}
	return world.NewTerrain(tier, types, weights)
}

func (c *Codec) DecodeFluid(m ChunkDataMsg) (*world.FluidChunk, error) {
	kind, _, tier, err := m.Target()
	if err != nil {
		return nil, err
	}
	if kind != world.KindFluid {
		return nil, fmt.Errorf("%w: %s is not fluid", ErrUnknownKind, kind)
	}
	if m.Homogeneous != nil {
		v := *m.Homogeneous
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: homogeneous fluid weight %v", ErrBadGrid, v)
		}
		return world.NewHomogeneousFluid(tier, float32(v)), nil
	}
	n := cube(world.FluidDim(tier))
	raw, err := c.unpack(m, 4*n)
	if err != nil {
		return nil, err
	}
	return world.NewFluid(tier, readFloats(raw))
}

func (c *Codec) DecodeBlock(m ChunkDataMsg) (*world.BlockChunk, error) {
	kind, _, tier, err := m.Target()
	if err != nil {
		return nil, err
	}
	if kind != world.KindBlock {
		return nil, fmt.Errorf("%w: %s is not block", ErrUnknownKind, kind)
	}
	if m.Homogeneous != nil {
		v, err := homogeneousID(*m.Homogeneous, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		return world.NewHomogeneousBlocks(tier, uint16(v)), nil
	}
	n := cube(world.BlockDim(tier))
	raw, err := c.unpack(m, 4*n)
	if err != nil {
		return nil, err
	}
	types := make([]uint16, n)
	meta := make([]uint16, n)
	for i := range n {
		types[i] = binary.LittleEndian.Uint16(raw[2*i:])
		meta[i] = binary.LittleEndian.Uint16(raw[2*n+2*i:])
	}
	return world.NewBlocks(tier, types, meta)
}

// homogeneousID checks a uniform terrain or block type: a whole number in [0, limit].
func homogeneousID(v, limit float64) (int64, error) {
	if math.IsNaN(v) || v < 0 || v > limit || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: homogeneous type %v", ErrBadGrid, v)
	}
	return int64(v), nil
}

func readFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}

func cube(n int) int { return n * n * n }
