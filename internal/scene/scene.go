// Package scene is the render-side collaborator the streaming engine attaches
// finished geometry to. Implementations are owned by the frame goroutine.
package scene

import (
	"sync"

	"voxstream/internal/meshing"
	"voxstream/internal/world"
)

// EntityID names an attached mesh. The zero value is never issued.
type EntityID uint64

// Scene receives geometry for cells. It is only used from the frame goroutine.
type Scene interface {
	// Attach uploads m for the cell and returns the new entity.
	Attach(kind world.Kind, key world.CellKey, tier world.Tier, m meshing.Mesh) EntityID
	// Destroy releases an entity. Destroying an unknown or already destroyed entity is a no-op.
	Destroy(id EntityID)
}

// Entity is one attached mesh held by Memory.
type Entity struct {
	ID   EntityID
	Kind world.Kind
	Key  world.CellKey
	Tier world.Tier
	Mesh meshing.Mesh
}

// Memory is a Scene that keeps entities in a map. Used headless and in tests.
type Memory struct {
	mu        sync.Mutex
	next      EntityID
	entities  map[EntityID]Entity
	destroyed int
}

func NewMemory() *Memory {
	return &Memory{entities: make(map[EntityID]Entity)}
}

func (s *Memory) Attach(kind world.Kind, key world.CellKey, tier world.Tier, m meshing.Mesh) EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.entities[s.next] = Entity{ID: s.next, Kind: kind, Key: key, Tier: tier, Mesh: m}
	return s.next
}

func (s *Memory) Destroy(id EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; ok {
		delete(s.entities, id)
		s.destroyed++
	}
}

// Get returns an attached entity.
func (s *Memory) Get(id EntityID) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	return e, ok
}

// Len returns the number of live entities.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// Destroyed returns how many entities have been destroyed.
func (s *Memory) Destroyed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Find returns the live entities attached for key of one kind.
func (s *Memory) Find(kind world.Kind, key world.CellKey) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entity
	for _, e := range s.entities {
		if e.Kind == kind && e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// Triangles sums the triangle count of every live entity.
func (s *Memory) Triangles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entities {
		n += e.Mesh.TriangleCount()
	}
	return n
}
