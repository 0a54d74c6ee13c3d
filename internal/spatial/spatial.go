// Package spatial provides reference implementations of the overlap,
// perception and visibility services the simulation consumes.
package spatial

import (
	"math"
	"sort"

	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/perception"
)

// Field reports perception enter and exit edges for every character within
// Radius of a viewer.
type Field struct {
	Radius float64
	inside map[string]map[string]*character.Character
}

// NewField constructs a perception field.
func NewField(radius float64) *Field {
	return &Field{Radius: radius, inside: make(map[string]map[string]*character.Character)}
}

// Sense diffs current proximity against the previous call. Subjects that die
// or stop colliding are reported as exits; dead viewers are forgotten.
func (f *Field) Sense(chars []*character.Character) []perception.Report {
	if f.inside == nil {
		f.inside = make(map[string]map[string]*character.Character)
	}
	var reports []perception.Report
	live := make(map[string]struct{}, len(chars))
	for _, viewer := range chars {
		if !viewer.Collidable() {
			continue
		}
		live[viewer.EntityID()] = struct{}{}
		prev := f.inside[viewer.EntityID()]
		next := make(map[string]*character.Character)
		for _, subject := range chars {
			if subject == viewer || !subject.Collidable() {
				continue
			}
			if geom.Distance(viewer.Position(), subject.Position()) > f.Radius {
				continue
			}
			next[subject.EntityID()] = subject
			if _, seen := prev[subject.EntityID()]; !seen {
				reports = append(reports, perception.Report{ViewerID: viewer.EntityID(), Subject: subject, Entered: true})
			}
		}
		for _, id := range sortedKeys(prev) {
			if _, still := next[id]; !still {
				reports = append(reports, perception.Report{ViewerID: viewer.EntityID(), Subject: prev[id], Entered: false})
			}
		}
		f.inside[viewer.EntityID()] = next
	}
	for id := range f.inside {
		if _, ok := live[id]; !ok {
			delete(f.inside, id)
		}
	}
	return reports
}

func sortedKeys(m map[string]*character.Character) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reach reports melee overlap candidates in front of an attacker.
type Reach struct {
	Radius float64
	// Arc is the full swing width in degrees.
	Arc float64
}

// DefaultReach returns a 2 unit, 120 degree swing.
func DefaultReach() Reach { return Reach{Radius: 2, Arc: 120} }

// Overlaps returns every collidable character inside the swing.
func (r Reach) Overlaps(attacker *character.Character, chars []*character.Character) []*character.Character {
	var hits []*character.Character
	for _, c := range chars {
		if c == attacker || !c.Collidable() {
			continue
		}
		delta := c.Position().Sub(attacker.Position())
		if delta.Len() > r.Radius {
			continue
		}
		if !delta.IsZero() && geom.AngleBetween(attacker.Forward(), delta) > r.Arc/2 {
			continue
		}
		hits = append(hits, c)
	}
	return hits
}

// Scene answers visibility and blocking queries against static obstacles and
// the tracked character population.
type Scene struct {
	Obstacles    []Rectangle
	EntityRadius float64
	population   func() []*character.Character
}

// NewScene builds a scene over obstacles.
func NewScene(obstacles []Rectangle, entityRadius float64) *Scene {
	return &Scene{Obstacles: obstacles, EntityRadius: entityRadius}
}

// Track sets the population consulted by Raycast.
func (s *Scene) Track(population func() []*character.Character) {
	s.population = population
}

// Raycast returns the nearest obstacle or character hit along dir, ignoring
// viewerID. Obstacles are reported with an "obstacle" id. A character whose
// circle contains the origin is hit at distance zero.
func (s *Scene) Raycast(viewerID string, origin, dir geom.Vec2, maxDistance float64) (string, bool) {
	dir = dir.Normalize()
	if dir.IsZero() {
		return "", false
	}
	best := math.Inf(1)
	hit := ""
	for _, rect := range s.Obstacles {
		if t, ok := rayRect(origin, dir, rect); ok && t <= maxDistance && t < best {
			best, hit = t, "obstacle"
		}
	}
	if s.population != nil {
		for _, c := range s.population() {
			if !c.Collidable() || c.EntityID() == viewerID {
				continue
			}
			if t, ok := rayCircle(origin, dir, c.Position(), s.EntityRadius); ok && t <= maxDistance && t < best {
				best, hit = t, c.EntityID()
			}
		}
	}
	return hit, hit != ""
}

// Blocked reports whether a character centred at pos would overlap an
// obstacle.
func (s *Scene) Blocked(pos geom.Vec2) bool {
	for _, rect := range s.Obstacles {
		if CircleRectOverlap(pos, s.EntityRadius, rect) {
			return true
		}
	}
	return false
}

var _ perception.VisibilityQuery = (*Scene)(nil)
