// Package protocol defines the JSON messages exchanged between the streaming
// client and a world server, and the compressed grid payload inside CHUNK_DATA.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"voxstream/internal/world"
)

const Version = "1.0"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWorldMeta    = "WORLD_META"
	TypeRequestChunk = "REQUEST_CHUNK"
	TypeChunkData    = "CHUNK_DATA"
	TypeVoxelUpdate  = "VOXEL_UPDATE"
	TypeBlockUpdate  = "BLOCK_UPDATE"
)

var (
	ErrUnknownKind = errors.New("protocol: unknown data kind")
	ErrBadGrid     = errors.New("protocol: malformed grid payload")
	ErrVersion     = errors.New("protocol: version mismatch")
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// WORLD_META (server -> client)
type WorldMetaMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	DiscreteSize    int    `json:"discrete_size"`
	CellSize        int    `json:"cell_size"`
}

// REQUEST_CHUNK (client -> server)
type RequestChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Kind            string `json:"kind"`
	WorldX          int32  `json:"world_x"`
	WorldY          int32  `json:"world_y"`
	WorldZ          int32  `json:"world_z"`
	Stride          int    `json:"stride"`
}

// CHUNK_DATA (server -> client). Homogeneous is set for uniform cells and Data
// is then omitted; otherwise Data holds the zstd-compressed packed grids.
type ChunkDataMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Kind            string   `json:"kind"`
	WorldX          int32    `json:"world_x"`
	WorldY          int32    `json:"world_y"`
	WorldZ          int32    `json:"world_z"`
	Stride          int      `json:"stride"`
	Homogeneous     *float64 `json:"homogeneous,omitempty"`
	Data            []byte   `json:"data,omitempty"`
	Update          bool     `json:"update,omitempty"`
}

// VOXEL_UPDATE (server -> client): one terrain sample changed.
type VoxelUpdateMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	WorldX          int32   `json:"world_x"`
	WorldY          int32   `json:"world_y"`
	WorldZ          int32   `json:"world_z"`
	VoxelX          int     `json:"voxel_x"`
	VoxelY          int     `json:"voxel_y"`
	VoxelZ          int     `json:"voxel_z"`
	Weight          float32 `json:"weight"`
	VoxelType       int32   `json:"voxel_type"`
}

// BLOCK_UPDATE (server -> client): one block changed.
type BlockUpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldX          int32  `json:"world_x"`
	WorldY          int32  `json:"world_y"`
	WorldZ          int32  `json:"world_z"`
	VoxelX          int    `json:"voxel_x"`
	VoxelY          int    `json:"voxel_y"`
	VoxelZ          int    `json:"voxel_z"`
	BlockType       uint16 `json:"block_type"`
	Metadata        uint16 `json:"metadata,omitempty"`
}

func NewHello(name string) HelloMsg {
	return HelloMsg{Type: TypeHello, ProtocolVersion: Version, ClientName: name}
}

func NewWorldMeta(b world.Bounds, cellSize int) WorldMetaMsg {
	return WorldMetaMsg{Type: TypeWorldMeta, ProtocolVersion: Version, DiscreteSize: b.DiscreteSize, CellSize: cellSize}
}

func NewRequestChunk(kind world.Kind, key world.CellKey, tier world.Tier) RequestChunkMsg {
	return RequestChunkMsg{
		Type:            TypeRequestChunk,
		ProtocolVersion: Version,
		Kind:            kind.String(),
		WorldX:          key.X,
		WorldY:          key.Y,
		WorldZ:          key.Z,
		Stride:          tier.Stride(),
	}
}

// Target resolves the kind, key and tier a request names.
func (m RequestChunkMsg) Target() (world.Kind, world.CellKey, world.Tier, error) {
	return target(m.Kind, m.WorldX, m.WorldY, m.WorldZ, m.Stride)
}

// Target resolves the kind, key and tier a chunk payload is for.
func (m ChunkDataMsg) Target() (world.Kind, world.CellKey, world.Tier, error) {
	return target(m.Kind, m.WorldX, m.WorldY, m.WorldZ, m.Stride)
}

func (m VoxelUpdateMsg) Key() world.CellKey {
	return world.CellKey{X: m.WorldX, Y: m.WorldY, Z: m.WorldZ}
}

func (m BlockUpdateMsg) Key() world.CellKey {
	return world.CellKey{X: m.WorldX, Y: m.WorldY, Z: m.WorldZ}
}

func target(kind string, x, y, z int32, stride int) (world.Kind, world.CellKey, world.Tier, error) {
	k, err := world.ParseKind(kind)
	if err != nil {
		return 0, world.CellKey{}, 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	tier, err := world.TierFromStride(stride)
	if err != nil {
		return 0, world.CellKey{}, 0, fmt.Errorf("%w: %v", ErrBadGrid, err)
	}
	return k, world.CellKey{X: x, Y: y, Z: z}, tier, nil
}

// CheckVersion rejects messages from a different protocol version.
func CheckVersion(base BaseMessage) error {
	if base.ProtocolVersion != Version {
		return fmt.Errorf("%w: got %q, want %q", ErrVersion, base.ProtocolVersion, Version)
	}
	return nil
}
