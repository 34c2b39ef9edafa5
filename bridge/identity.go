package bridge

import (
	"weak"

	"github.com/caffeineduck/starbridge/foreign"
)

// slot owns the single strong reference of one wrapper. It outlives the
// wrapper so the reference can be released after the GC has reclaimed it.
type slot struct {
	ref foreign.Ref
}

type entry struct {
	obj  weak.Pointer[Object]
	slot *slot
}

// store maps foreign identities to their live wrapper. Entries are weak:
// the store never keeps a wrapper alive.
type store struct {
	entries map[foreign.Ref]entry
	release func(*slot) // drops the reference of a stale entry
}

func newStore(release func(*slot)) *store {
	return &store{
		entries: make(map[foreign.Ref]entry),
		release: release,
	}
}

// register inserts obj under id. Callers look id up first; a live entry is
// reused, never overwritten.
func (s *store) register(id foreign.Ref, obj *Object) {
	s.entries[id] = entry{obj: weak.Make(obj), slot: obj.slot}
}

// lookup returns the live wrapper for id. An entry whose wrapper was
// already reclaimed is evicted and its reference released on the spot.
func (s *store) lookup(id foreign.Ref) (*Object, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if obj := e.obj.Value(); obj != nil && obj.slot.ref != 0 {
		return obj, true
	}
	delete(s.entries, id)
	s.release(e.slot)
	return nil, false
}

// evict removes the entry for id only while it still belongs to owner.
func (s *store) evict(id foreign.Ref, owner *slot) {
	if e, ok := s.entries[id]; ok && e.slot == owner {
		delete(s.entries, id)
	}
}

func (s *store) len() int {
	return len(s.entries)
}

// drain removes every entry and returns their slots.
func (s *store) drain() []*slot {
	slots := make([]*slot, 0, len(s.entries))
	for id, e := range s.entries {
		slots = append(slots, e.slot)
		delete(s.entries, id)
	}
	return slots
}
