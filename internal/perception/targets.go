package perception

import "github.com/MurkesM/ARPG/internal/combat"

// Candidate is an entity reported by the spatial perception source.
type Candidate interface {
	EntityID() string
	Faction() combat.Faction
}

// TargetSet is an insertion-ordered, deduplicated collection of perceived
// opposing entities. A member that leaves and re-enters goes to the back.
type TargetSet struct {
	order []Candidate
	index map[string]int
}

// Add appends c unless it is already present. It reports whether c was added.
func (s *TargetSet) Add(c Candidate) bool {
	if c == nil || c.EntityID() == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[c.EntityID()]; ok {
		return false
	}
	s.index[c.EntityID()] = len(s.order)
	s.order = append(s.order, c)
	return true
}

// Remove drops the member with id. It reports whether a member was removed.
func (s *TargetSet) Remove(id string) bool {
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.order = append(s.order[:pos], s.order[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.order); i++ {
		s.index[s.order[i].EntityID()] = i
	}
	return true
}

// Contains reports membership.
func (s *TargetSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Primary returns the earliest-acquired member still present.
func (s *TargetSet) Primary() (Candidate, bool) {
	if len(s.order) == 0 {
		return nil, false
	}
	return s.order[0], true
}

// Members returns the ids in acquisition order.
func (s *TargetSet) Members() []string {
	ids := make([]string, len(s.order))
	for i, c := range s.order {
		ids[i] = c.EntityID()
	}
	return ids
}

// Len reports the number of members.
func (s *TargetSet) Len() int { return len(s.order) }

// Clear empties the set.
func (s *TargetSet) Clear() {
	s.order = nil
	s.index = nil
}
