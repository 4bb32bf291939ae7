package persist

import (
	"context"
	"path/filepath"
	"testing"

	"voxstream/internal/protocol"
	"voxstream/internal/world"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "save", "world.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	codec, err := protocol.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()

	n := world.TerrainDim(world.TierFull)
	types := make([]int32, n*n*n)
	weights := make([]float32, n*n*n)
	for i := range weights {
		weights[i] = float32(i%5) - 2
		types[i] = int32(i % 4)
	}
	mixed, err := world.NewTerrain(world.TierFull, types, weights)
	if err != nil {
		t.Fatal(err)
	}
	msgs := []protocol.ChunkDataMsg{
		codec.EncodeTerrain(world.Key(1, 2, 3), mixed, false),
		codec.EncodeTerrain(world.Key(-4, 0, 9), world.NewHomogeneousTerrain(world.TierFull, 2), false),
	}
	if err := s.SaveStream(ctx, world.KindTerrain, msgs); err != nil {
		t.Fatalf("SaveStream: %v", err)
	}

	got, err := s.LoadStream(ctx, world.KindTerrain)
	if err != nil {
		t.Fatalf("LoadStream: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d records, want 2", len(got))
	}
	for _, m := range got {
		rec, err := codec.DecodeTerrain(m)
		if err != nil {
			t.Fatalf("DecodeTerrain: %v", err)
		}
		_, key, _, _ := m.Target()
		switch key {
		case world.Key(1, 2, 3):
			if !rec.Equal(mixed) {
				t.Fatal("mixed record changed on disk")
			}
		case world.Key(-4, 0, 9):
			if v, ok := rec.Homogeneous(); !ok || v != 2 {
				t.Fatalf("homogeneous record: got %d,%v", v, ok)
			}
		default:
			t.Fatalf("unexpected key %v", key)
		}
	}
}

func TestSaveReplacesKind(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	codec, err := protocol.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()

	blocks := func(keys ...world.CellKey) []protocol.ChunkDataMsg {
		var out []protocol.ChunkDataMsg
		for _, k := range keys {
			out = append(out, codec.EncodeBlock(k, world.NewHomogeneousBlocks(world.TierFull, 1), false))
		}
		return out
	}
	if err := s.SaveStream(ctx, world.KindBlock, blocks(world.Key(0, 0, 0), world.Key(1, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveStream(ctx, world.KindFluid, []protocol.ChunkDataMsg{
		codec.EncodeFluid(world.Key(0, 0, 0), world.NewHomogeneousFluid(world.TierFull, 1), false),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveStream(ctx, world.KindBlock, blocks(world.Key(5, 5, 5))); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.Count(ctx, world.KindBlock); n != 1 {
		t.Fatalf("blocks: got %d, want 1", n)
	}
	if n, _ := s.Count(ctx, world.KindFluid); n != 1 {
		t.Fatalf("fluid: got %d, want 1", n)
	}
}

func TestSaveRejectsMixedKinds(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	codec, err := protocol.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()

	bad := []protocol.ChunkDataMsg{codec.EncodeFluid(world.Key(0, 0, 0), world.NewHomogeneousFluid(world.TierFull, 1), false)}
	if err := s.SaveStream(ctx, world.KindTerrain, bad); err == nil {
		t.Fatal("saved a fluid record as terrain")
	}
	if n, _ := s.Count(ctx, world.KindTerrain); n != 0 {
		t.Fatalf("failed save left %d rows", n)
	}
}
