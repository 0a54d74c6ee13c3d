package sim

import (
	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
)

// Standalone applies every change locally without replication. Single-node
// sessions and tests use it.
type Standalone struct {
	world *World
}

// NewStandaloneWorld builds an authoritative world whose changes apply
// immediately.
func NewStandaloneWorld(cfg WorldConfig, deps Deps) (*World, error) {
	authority := &Standalone{}
	deps.Authority = authority
	cfg.Authoritative = true
	w, err := NewWorld(cfg, deps)
	if err != nil {
		return nil, err
	}
	authority.world = w
	return w, nil
}

func (s *Standalone) AuthorizeHealthChange(l *health.Ledger, delta int) { l.ApplyHealthChange(delta) }

func (s *Standalone) AuthorizeAttackStart(session *combat.Session, kind combat.Kind) {
	session.ApplyAttackStart(kind)
}

func (s *Standalone) AuthorizeAttackEnd(session *combat.Session) { session.ApplyAttackEnd() }

func (s *Standalone) AuthorizeMove(c *character.Character, destination geom.Vec2) {
	c.MoveTo(destination, s.world.Tick())
}

func (s *Standalone) AuthorizeSpawn(spec SpawnSpec) {
	if _, err := s.world.Spawn(spec); err != nil {
		s.world.deps.Logger.Printf("[sim] spawn %s rejected: %v", spec.ID, err)
	}
}

func (s *Standalone) AuthorizeDespawn(id string) { s.world.Remove(id) }
