package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"voxstream/internal/world"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// viaJSON pushes a message through the wire encoding.
func viaJSON(t *testing.T, m ChunkDataMsg) ChunkDataMsg {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	base, err := DecodeBase(b)
	if err != nil || base.Type != TypeChunkData || CheckVersion(base) != nil {
		t.Fatalf("base: %+v %v", base, err)
	}
	var out ChunkDataMsg
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestTerrainGridSurvivesWire(t *testing.T) {
	c := newCodec(t)
	tier := world.TierHalf
	n := world.TerrainDim(tier)
	types := make([]int32, n*n*n)
	weights := make([]float32, n*n*n)
	for i := range types {
		types[i] = int32(i % 3)
		weights[i] = float32(i%11)/5 - 1
	}
	r, err := world.NewTerrain(tier, types, weights)
	if err != nil {
		t.Fatal(err)
	}
	key := world.Key(-2, 7, 1)
	m := viaJSON(t, c.EncodeTerrain(key, r, true))
	if m.Homogeneous != nil || len(m.Data) == 0 || !m.Update {
		t.Fatalf("unexpected header: %+v", m)
	}
	kind, gotKey, gotTier, err := m.Target()
	if err != nil || kind != world.KindTerrain || gotKey != key || gotTier != tier {
		t.Fatalf("Target: %v %v %v %v", kind, gotKey, gotTier, err)
	}
	got, err := c.DecodeTerrain(m)
	if err != nil {
		t.Fatalf("DecodeTerrain: %v", err)
	}
	if !got.Equal(r) {
		t.Fatalf("decoded terrain differs")
	}
}

func TestHomogeneousOmitsData(t *testing.T) {
	c := newCodec(t)
	m := viaJSON(t, c.EncodeBlock(world.Key(0, 0, 0), world.NewHomogeneousBlocks(world.TierFull, 9), false))
	if m.Homogeneous == nil || *m.Homogeneous != 9 || m.Data != nil {
		t.Fatalf("homogeneous header: %+v", m)
	}
	got, err := c.DecodeBlock(m)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := got.Homogeneous(); !ok || v != 9 {
		t.Fatalf("decoded: got %d,%v", v, ok)
	}

	fm := viaJSON(t, c.EncodeFluid(world.Key(0, 0, 0), world.NewHomogeneousFluid(world.TierFull, 0.5), false))
	f, err := c.DecodeFluid(fm)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := f.Homogeneous(); !ok || v != 0.5 {
		t.Fatalf("fluid decoded: got %f,%v", v, ok)
	}
}

func TestFluidAndBlockGrids(t *testing.T) {
	c := newCodec(t)
	fn := world.FluidDim(world.TierFull)
	w := make([]float32, fn*fn*fn)
	w[100] = 0.25
	f, _ := world.NewFluid(world.TierFull, w)
	gotF, err := c.DecodeFluid(viaJSON(t, c.EncodeFluid(world.Key(1, 1, 1), f, false)))
	if err != nil || !gotF.Equal(f) {
		t.Fatalf("fluid round trip: %v", err)
	}

	bn := world.BlockDim(world.TierQuarter)
	types := make([]uint16, bn*bn*bn)
	meta := make([]uint16, bn*bn*bn)
	types[5], meta[5] = 3, 7
	b, _ := world.NewBlocks(world.TierQuarter, types, meta)
	gotB, err := c.DecodeBlock(viaJSON(t, c.EncodeBlock(world.Key(1, 1, 1), b, false)))
	if err != nil || !gotB.Equal(b) {
		t.Fatalf("block round trip: %v", err)
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	c := newCodec(t)
	m := c.EncodeFluid(world.Key(0, 0, 0), world.NewHomogeneousFluid(world.TierFull, 1), false)
	m.Homogeneous = nil
	m.Data = c.enc.EncodeAll([]byte{1, 2, 3}, nil)
	if _, err := c.DecodeFluid(m); !errors.Is(err, ErrBadGrid) {
		t.Fatalf("short grid: got %v, want ErrBadGrid", err)
	}
	m.Data = []byte("not zstd")
	if _, err := c.DecodeFluid(m); !errors.Is(err, ErrBadGrid) {
		t.Fatalf("garbage: got %v, want ErrBadGrid", err)
	}
	m.Kind = "lava"
	if _, err := c.DecodeFluid(m); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unknown kind: got %v, want ErrUnknownKind", err)
	}
	m.Kind = "terrain"
	if _, err := c.DecodeFluid(m); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("wrong kind: got %v, want ErrUnknownKind", err)
	}
	m.Kind, m.Stride = "fluid", 7
	if _, err := c.DecodeFluid(m); !errors.Is(err, ErrBadGrid) {
		t.Fatalf("bad stride: got %v, want ErrBadGrid", err)
	}
}

func TestDecodeRejectsBadHomogeneousValues(t *testing.T) {
	c := newCodec(t)
	terrain := c.EncodeTerrain(world.Key(0, 0, 0), world.NewHomogeneousTerrain(world.TierFull, 1), false)
	block := c.EncodeBlock(world.Key(0, 0, 0), world.NewHomogeneousBlocks(world.TierFull, 1), false)
	fluid := c.EncodeFluid(world.Key(0, 0, 0), world.NewHomogeneousFluid(world.TierFull, 1), false)

	for _, v := range []float64{-1, 1.5, math.NaN(), math.Inf(1), math.MaxInt32 + 1} {
		terrain.Homogeneous = &v
		if _, err := c.DecodeTerrain(terrain); !errors.Is(err, ErrBadGrid) {
			t.Fatalf("terrain homogeneous %v: got %v, want ErrBadGrid", v, err)
		}
	}
	for _, v := range []float64{-1, 2.25, math.NaN(), math.MaxUint16 + 1} {
		block.Homogeneous = &v
		if _, err := c.DecodeBlock(block); !errors.Is(err, ErrBadGrid) {
			t.Fatalf("block homogeneous %v: got %v, want ErrBadGrid", v, err)
		}
	}
	for _, v := range []float64{math.NaN(), math.Inf(-1), 1e300} {
		fluid.Homogeneous = &v
		if _, err := c.DecodeFluid(fluid); !errors.Is(err, ErrBadGrid) {
			t.Fatalf("fluid homogeneous %v: got %v, want ErrBadGrid", v, err)
		}
	}

	ok := float64(math.MaxUint16)
	block.Homogeneous = &ok
	rec, err := c.DecodeBlock(block)
	if err != nil {
		t.Fatalf("max block type: %v", err)
	}
	if v, homo := rec.Homogeneous(); !homo || v != math.MaxUint16 {
		t.Fatalf("max block type: got %d,%v", v, homo)
	}
}

func TestRequestChunkTarget(t *testing.T) {
	m := NewRequestChunk(world.KindBlock, world.Key(3, 4, 5), world.TierEighth)
	b, _ := json.Marshal(m)
	var got RequestChunkMsg
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	kind, key, tier, err := got.Target()
	if err != nil || kind != world.KindBlock || key != world.Key(3, 4, 5) || tier != world.TierEighth {
		t.Fatalf("Target: %v %v %v %v", kind, key, tier, err)
	}
}

func TestCheckVersion(t *testing.T) {
	if err := CheckVersion(BaseMessage{Type: TypeHello, ProtocolVersion: "0.1"}); !errors.Is(err, ErrVersion) {
		t.Fatalf("got %v, want ErrVersion", err)
	}
}
