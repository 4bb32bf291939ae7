package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"voxstream/internal/protocol"
	"voxstream/internal/streaming"
	"voxstream/internal/world"
)

// HandleMessage routes one inbound message. Chunk payloads are decoded here and
// queued on their manager; metadata and edits wait for the next Frame.
func (e *Engine) HandleMessage(typ string, raw []byte) {
	var err error
	switch typ {
	case protocol.TypeChunkData:
		var m protocol.ChunkDataMsg
		if err = json.Unmarshal(raw, &m); err == nil {
			err = e.receive(m)
		}
	case protocol.TypeWorldMeta:
		var m protocol.WorldMetaMsg
		if err = json.Unmarshal(raw, &m); err == nil {
			e.post(m)
		}
	case protocol.TypeVoxelUpdate:
		var m protocol.VoxelUpdateMsg
		if err = json.Unmarshal(raw, &m); err == nil {
			e.post(m)
		}
	case protocol.TypeBlockUpdate:
		var m protocol.BlockUpdateMsg
		if err = json.Unmarshal(raw, &m); err == nil {
			e.post(m)
		}
	default:
		e.log.Warn("unhandled message type", zap.String("type", typ))
		return
	}
	if err != nil {
		e.log.Warn("dropping message", zap.String("type", typ), zap.Error(err))
	}
}

// receive decodes a chunk payload and queues it on the manager of its kind.
func (e *Engine) receive(m protocol.ChunkDataMsg) error {
	kind, key, tier, err := m.Target()
	if err != nil {
		return err
	}
	switch kind {
	case world.KindTerrain:
		rec, err := e.codec.DecodeTerrain(m)
		if err != nil {
			return err
		}
		e.terrain.mgr.Enqueue(streaming.Response[*world.TerrainChunk]{Key: key, Tier: tier, Cell: rec, Update: m.Update})
	case world.KindFluid:
		rec, err := e.codec.DecodeFluid(m)
		if err != nil {
			return err
		}
		e.fluid.mgr.Enqueue(streaming.Response[*world.FluidChunk]{Key: key, Tier: tier, Cell: rec, Update: m.Update})
	case world.KindBlock:
		rec, err := e.codec.DecodeBlock(m)
		if err != nil {
			return err
		}
		e.block.mgr.Enqueue(streaming.Response[*world.BlockChunk]{Key: key, Tier: tier, Cell: rec, Update: m.Update})
	default:
		return fmt.Errorf("%w: %v", protocol.ErrUnknownKind, kind)
	}
	return nil
}

func (e *Engine) post(ev any) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// applyEvents runs queued metadata and edit messages in arrival order and
// returns how many edits landed on cached data.
func (e *Engine) applyEvents() int {
	e.mu.Lock()
	events := e.events
	e.events = nil
	e.mu.Unlock()

	edits := 0
	for _, ev := range events {
		switch m := ev.(type) {
		case protocol.WorldMetaMsg:
			e.applyMeta(m)
		case protocol.VoxelUpdateMsg:
			if e.applyVoxelEdit(m) {
				edits++
			}
		case protocol.BlockUpdateMsg:
			if e.applyBlockEdit(m) {
				edits++
			}
		}
	}
	return edits
}

func (e *Engine) applyMeta(m protocol.WorldMetaMsg) {
	b := world.Bounds{DiscreteSize: m.DiscreteSize}
	if !b.Fits() {
		e.log.Warn("world too large for key range, keeping bounds", zap.Int("discrete_size", m.DiscreteSize))
		return
	}
	if m.CellSize != 0 && m.CellSize != e.space.CellSize {
		e.log.Warn("server cell size differs from configured",
			zap.Int("server", m.CellSize), zap.Int("configured", e.space.CellSize))
	}
	for _, kind := range world.Kinds {
		e.Tracker(kind).SetBounds(b)
	}
	e.log.Info("world metadata", zap.Int("discrete_size", m.DiscreteSize), zap.Int("cell_size", m.CellSize))
}

// applyVoxelEdit writes one terrain sample into the cached full-resolution
// record and schedules every cell sharing that sample for regeneration.
func (e *Engine) applyVoxelEdit(m protocol.VoxelUpdateMsg) bool {
	key := m.Key()
	var editErr error
	ok := e.terrain.mgr.Edit(key, world.TierFull, func(c *world.TerrainChunk) {
		editErr = c.SetVoxel(m.VoxelX, m.VoxelY, m.VoxelZ, m.Weight, m.VoxelType)
	})
	if !ok {
		e.log.Debug("voxel edit for uncached cell", zap.Stringer("key", key))
		return false
	}
	if editErr != nil {
		e.log.Warn("bad voxel edit", zap.Stringer("key", key), zap.Error(editErr))
		return false
	}
	for _, k := range touchedCells(key, m.VoxelX, m.VoxelY, m.VoxelZ) {
		e.terrain.tracker.MarkNeedsRegen(k)
		e.fluid.tracker.MarkNeedsRegen(k)
	}
	return true
}

func (e *Engine) applyBlockEdit(m protocol.BlockUpdateMsg) bool {
	key := m.Key()
	var editErr error
	ok := e.block.mgr.Edit(key, world.TierFull, func(c *world.BlockChunk) {
		editErr = c.SetBlock(m.VoxelX, m.VoxelY, m.VoxelZ, m.BlockType, m.Metadata)
	})
	if !ok {
		e.log.Debug("block edit for uncached cell", zap.Stringer("key", key))
		return false
	}
	if editErr != nil {
		e.log.Warn("bad block edit", zap.Stringer("key", key), zap.Error(editErr))
		return false
	}
	for _, k := range touchedCells(key, m.VoxelX, m.VoxelY, m.VoxelZ) {
		e.block.tracker.MarkNeedsRegen(k)
	}
	return true
}

// touchedCells returns key plus every neighbour that shares the edited
// sample: a zero coordinate on an axis also reaches the cell at -1 on it.
func touchedCells(key world.CellKey, x, y, z int) []world.CellKey {
	out := []world.CellKey{key}
	steps := [3]struct {
		on         bool
		dx, dy, dz int
	}{
		{x == 0, -1, 0, 0},
		{y == 0, 0, -1, 0},
		{z == 0, 0, 0, -1},
	}
	for _, s := range steps {
		if !s.on {
			continue
		}
		for _, k := range out {
			out = append(out, k.Add(s.dx, s.dy, s.dz))
		}
	}
	return out
}

// Export encodes every cached full-resolution record of kind.
func (e *Engine) Export(kind world.Kind) []protocol.ChunkDataMsg {
	var out []protocol.ChunkDataMsg
	switch kind {
	case world.KindTerrain:
		for _, en := range e.terrain.mgr.Cache().Entries(world.TierFull) {
			out = append(out, e.codec.EncodeTerrain(en.Key, en.Cell, false))
		}
	case world.KindFluid:
		for _, en := range e.fluid.mgr.Cache().Entries(world.TierFull) {
			out = append(out, e.codec.EncodeFluid(en.Key, en.Cell, false))
		}
	case world.KindBlock:
		for _, en := range e.block.mgr.Cache().Entries(world.TierFull) {
			out = append(out, e.codec.EncodeBlock(en.Key, en.Cell, false))
		}
	}
	return out
}

// Import queues saved records as if they had just arrived.
func (e *Engine) Import(msgs []protocol.ChunkDataMsg) error {
	var errs []error
	for _, m := range msgs {
		if err := e.receive(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
