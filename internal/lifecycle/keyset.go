package lifecycle

import (
	"container/list"

	"voxstream/internal/world"
)

// keySet is an insertion-ordered set of keys with O(1) removal.
type keySet struct {
	order *list.List
	elems map[world.CellKey]*list.Element
}

func newKeySet() *keySet {
	return &keySet{order: list.New(), elems: make(map[world.CellKey]*list.Element)}
}

func (s *keySet) add(k world.CellKey) {
	if _, ok := s.elems[k]; ok {
		return
	}
	s.elems[k] = s.order.PushBack(k)
}

func (s *keySet) remove(k world.CellKey) bool {
	el, ok := s.elems[k]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.elems, k)
	return true
}

func (s *keySet) front() (world.CellKey, bool) {
	el := s.order.Front()
	if el == nil {
		return world.CellKey{}, false
	}
	return el.Value.(world.CellKey), true
}

func (s *keySet) len() int { return len(s.elems) }

func (s *keySet) keys() []world.CellKey {
	out := make([]world.CellKey, 0, len(s.elems))
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(world.CellKey))
	}
	return out
}

func (s *keySet) clear() {
	s.order.Init()
	clear(s.elems)
}
