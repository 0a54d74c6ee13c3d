package character

import (
	"errors"
	"fmt"

	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/event"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
)

// ErrMissingID is returned for a character without an identifier.
var ErrMissingID = errors.New("character: id is required")

// Config describes a character at spawn time.
type Config struct {
	ID        string
	Faction   combat.Faction
	Position  geom.Vec2
	Facing    float64
	MaxHealth int
	Combat    combat.Config
	Movement  MovementConfig

	HealthAuthority health.Authority
	CombatAuthority combat.Authority
}

// State is the replicated view of a character.
type State struct {
	ID         string         `json:"id"`
	Faction    combat.Faction `json:"faction"`
	Position   geom.Vec2      `json:"position"`
	Facing     float64        `json:"facing"`
	Health     int            `json:"health"`
	MaxHealth  int            `json:"maxHealth"`
	Alive      bool           `json:"alive"`
	Attacking  bool           `json:"attacking,omitempty"`
	AttackKind combat.Kind    `json:"attackKind,omitempty"`
}

// Character is a combat entity: identity, pose and the ledger and session it
// exclusively owns.
type Character struct {
	id       string
	faction  combat.Faction
	position geom.Vec2
	facing   float64

	ledger  *health.Ledger
	session *combat.Session

	movement    MovementConfig
	mover       Mover
	collidable  bool
	windowTicks uint64

	moveStarted event.List[MoveStarted]
	moveStopped event.List[MoveStopped]
}

// New builds a character at full health.
func New(cfg Config) (*Character, error) {
	if cfg.ID == "" {
		return nil, ErrMissingID
	}
	ledger, err := health.NewLedger(cfg.ID, cfg.MaxHealth, cfg.HealthAuthority)
	if err != nil {
		return nil, fmt.Errorf("character %q: %w", cfg.ID, err)
	}
	return assemble(cfg, ledger)
}

// FromState rebuilds a character from a replicated snapshot.
func FromState(state State, cfg Config) (*Character, error) {
	cfg.ID = state.ID
	cfg.Faction = state.Faction
	cfg.Position = state.Position
	cfg.Facing = state.Facing
	cfg.MaxHealth = state.MaxHealth
	if cfg.ID == "" {
		return nil, ErrMissingID
	}
	ledger, err := health.Restore(state.ID, state.Health, state.MaxHealth, state.Alive, cfg.HealthAuthority)
	if err != nil {
		return nil, fmt.Errorf("character %q: %w", cfg.ID, err)
	}
	c, err := assemble(cfg, ledger)
	if err != nil {
		return nil, err
	}
	if state.Attacking {
		c.session.ApplyAttackStart(state.AttackKind)
	}
	if !state.Alive {
		c.collidable = false
	}
	return c, nil
}

func assemble(cfg Config, ledger *health.Ledger) (*Character, error) {
	combatCfg := cfg.Combat
	if combatCfg == (combat.Config{}) {
		combatCfg = combat.DefaultConfig()
		combatCfg.AllowedTargets = 0
	}
	if combatCfg.AllowedTargets == 0 {
		combatCfg.AllowedTargets = combat.OpposingTargets(cfg.Faction)
	}
	session, err := combat.NewSession(cfg.ID, cfg.Faction, combatCfg, cfg.CombatAuthority)
	if err != nil {
		return nil, fmt.Errorf("character %q: %w", cfg.ID, err)
	}
	movement := cfg.Movement
	if movement == (MovementConfig{}) {
		movement = DefaultMovementConfig()
	}

	c := &Character{
		id:         cfg.ID,
		faction:    cfg.Faction,
		position:   cfg.Position,
		facing:     geom.WrapAngle(cfg.Facing),
		ledger:     ledger,
		session:    session,
		movement:   movement,
		collidable: true,
	}
	session.OnAttackStarted(func(combat.Started) {
		c.windowTicks = 0
		c.suspendMovement()
	})
	return c, nil
}

// EntityID returns the character identifier.
func (c *Character) EntityID() string { return c.id }

// Faction returns the character's side.
func (c *Character) Faction() combat.Faction { return c.faction }

// Position returns the planar position.
func (c *Character) Position() geom.Vec2 { return c.position }

// Facing returns the yaw in radians.
func (c *Character) Facing() float64 { return c.facing }

// Forward returns the unit facing direction.
func (c *Character) Forward() geom.Vec2 { return geom.FromHeading(c.facing) }

// Health returns the owned ledger.
func (c *Character) Health() *health.Ledger { return c.ledger }

// Combat returns the owned attack session.
func (c *Character) Combat() *combat.Session { return c.session }

// Movement returns the locomotion tuning.
func (c *Character) Movement() MovementConfig { return c.movement }

// TryApplyHealthChange forwards to the owned ledger so the character can be
// reported as an overlap target.
func (c *Character) TryApplyHealthChange(delta int) {
	c.ledger.TryApplyHealthChange(delta)
}

// IsAlive reports whether the character is alive.
func (c *Character) IsAlive() bool { return c.ledger.IsAlive() }

// Collidable reports whether the character still takes part in overlaps.
func (c *Character) Collidable() bool { return c.collidable && c.ledger.IsAlive() }

// DisableCollision removes the character from overlap and perception reports.
func (c *Character) DisableCollision() { c.collidable = false }

// SetPose overwrites position and facing. Observers use it to mirror
// replicated movement.
func (c *Character) SetPose(position geom.Vec2, facing float64) {
	c.position = position
	c.facing = geom.WrapAngle(facing)
}

// AdvanceAttackWindow counts one tick of an open attack and closes the window
// once the configured length has elapsed. Only the authoritative node runs
// it; observers receive the close as a replicated change.
func (c *Character) AdvanceAttackWindow() bool {
	if !c.session.IsAttacking() {
		return false
	}
	c.windowTicks++
	if c.windowTicks < c.session.Config().WindowTicks {
		return false
	}
	c.session.OnAttackWindowEnd()
	return true
}

// State captures the replicated view.
func (c *Character) State() State {
	return State{
		ID:         c.id,
		Faction:    c.faction,
		Position:   c.position,
		Facing:     c.facing,
		Health:     c.ledger.CurrentHealth(),
		MaxHealth:  c.ledger.MaxHealth(),
		Alive:      c.ledger.IsAlive(),
		Attacking:  c.session.IsAttacking(),
		AttackKind: c.session.CurrentKind(),
	}
}

// Close tears down every owned subscription list.
func (c *Character) Close() {
	c.ledger.Close()
	c.session.Close()
	c.moveStarted.Close()
	c.moveStopped.Close()
}
