package character

import (
	"errors"
	"math"
	"testing"

	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
)

func newTestCharacter(t *testing.T, id string, faction combat.Faction, pos geom.Vec2) *Character {
	t.Helper()
	c, err := New(Config{
		ID:              id,
		Faction:         faction,
		Position:        pos,
		MaxHealth:       100,
		Combat:          combat.DefaultConfig(),
		Movement:        MovementConfig{MoveSpeed: 10, RotationSpeed: 90, ArriveThreshold: 0.01},
		HealthAuthority: health.Standalone,
		CombatAuthority: combat.Standalone,
	})
	if err != nil {
		t.Fatalf("unexpected character error: %v", err)
	}
	return c
}

func TestNewRequiresAuthorities(t *testing.T) {
	_, err := New(Config{ID: "p1", Faction: combat.FactionPlayer, MaxHealth: 100, CombatAuthority: combat.Standalone})
	if !errors.Is(err, health.ErrMissingAuthority) {
		t.Fatalf("expected missing health authority error, got %v", err)
	}
	_, err = New(Config{ID: "p1", Faction: combat.FactionPlayer, MaxHealth: 100, HealthAuthority: health.Standalone})
	if !errors.Is(err, combat.ErrMissingAuthority) {
		t.Fatalf("expected missing combat authority error, got %v", err)
	}
	if _, err := New(Config{}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

func TestMoveToArrivesAndStops(t *testing.T) {
	c := newTestCharacter(t, "p1", combat.FactionPlayer, geom.Vec2{})
	var stops []MoveStopped
	starts := 0
	c.OnMoveStarted(func(MoveStarted) { starts++ })
	c.OnMoveStopped(func(ev MoveStopped) { stops = append(stops, ev) })

	if !c.MoveTo(geom.Vec2{X: 2}, 1) {
		t.Fatalf("expected move command to be accepted")
	}
	for i := 0; i < 10 && c.IsMoving(); i++ {
		c.Step(0.05)
	}

	if c.IsMoving() {
		t.Fatalf("expected movement to complete")
	}
	if math.Abs(c.Position().X-2) > 0.02 {
		t.Fatalf("expected to arrive near destination, got %+v", c.Position())
	}
	if starts != 1 || len(stops) != 1 || stops[0].Reason != StopArrived {
		t.Fatalf("unexpected move notifications: starts=%d stops=%+v", starts, stops)
	}
	if !c.Mover().Done || c.Mover().ElapsedTicks == 0 {
		t.Fatalf("expected tick-counted completion, got %+v", c.Mover())
	}
}

func TestFollowStopsShortOfTarget(t *testing.T) {
	c := newTestCharacter(t, "npc-1", combat.FactionEnemy, geom.Vec2{})
	c.Follow(geom.Vec2{X: 3}, 1.5, 0)

	c.Step(1)

	if got := c.Position().X; math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("expected to stop at stopping distance, got %v", got)
	}
}

func TestRotationIsProgressive(t *testing.T) {
	c := newTestCharacter(t, "npc-1", combat.FactionEnemy, geom.Vec2{})
	c.Follow(geom.Vec2{Y: 100}, 1, 0)

	c.Step(0.5)

	if got, want := c.Facing(), geom.Radians(45); math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected facing capped at %v, got %v", want, got)
	}
}

func TestAttackSuspendsMovement(t *testing.T) {
	c := newTestCharacter(t, "p1", combat.FactionPlayer, geom.Vec2{})
	var reason StopReason
	c.OnMoveStopped(func(ev MoveStopped) { reason = ev.Reason })

	c.MoveTo(geom.Vec2{X: 10}, 0)
	c.Step(0.1)
	c.Combat().PrimaryAttack()

	if c.IsMoving() || reason != StopSuspended {
		t.Fatalf("expected attack to suspend movement, reason=%q", reason)
	}
	before := c.Position()
	if c.Step(0.1) || c.Position() != before {
		t.Fatalf("expected no movement while attacking")
	}
	if c.MoveTo(geom.Vec2{X: 5}, 2) {
		t.Fatalf("expected move command to be rejected during an attack")
	}
	if c.TurnTowards(geom.Vec2{Y: 5}, 1) {
		t.Fatalf("expected rotation to be suspended during an attack")
	}
}

func TestAdvanceAttackWindowClosesAfterConfiguredTicks(t *testing.T) {
	c := newTestCharacter(t, "p1", combat.FactionPlayer, geom.Vec2{})
	c.Combat().PrimaryAttack()

	window := c.Combat().Config().WindowTicks
	for i := uint64(1); i < window; i++ {
		if c.AdvanceAttackWindow() {
			t.Fatalf("window closed early at tick %d", i)
		}
	}
	if !c.AdvanceAttackWindow() {
		t.Fatalf("expected window to close after %d ticks", window)
	}
	if c.Combat().IsAttacking() {
		t.Fatalf("expected session to be idle")
	}
}

func TestFromStateRestoresDeadCharacter(t *testing.T) {
	state := State{ID: "npc-1", Faction: combat.FactionEnemy, Health: -10, MaxHealth: 100, Alive: false}
	c, err := FromState(state, Config{HealthAuthority: health.Standalone, CombatAuthority: combat.Standalone})
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if c.IsAlive() || c.Collidable() || c.Health().CurrentHealth() != -10 {
		t.Fatalf("unexpected restored state: %+v", c.State())
	}
	if c.Combat().Config().AllowedTargets != combat.AllowPlayer {
		t.Fatalf("expected enemy to target players by default")
	}
}
