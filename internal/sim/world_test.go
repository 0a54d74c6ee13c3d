package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/MurkesM/ARPG/internal/ai"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/internal/lifecycle"
	"github.com/MurkesM/ARPG/internal/spatial"
	loggingcombat "github.com/MurkesM/ARPG/logging/combat"
	"github.com/MurkesM/ARPG/logging/sinks"
)

const testDt = 1.0 / 30

type testWorld struct {
	*World
	registry *lifecycle.Registry
	events   *sinks.MemorySink
	tick     uint64
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	scene := spatial.NewScene(nil, 0.5)
	registry := lifecycle.NewRegistry(nil)
	events := sinks.NewMemorySink()
	w, err := NewStandaloneWorld(DefaultWorldConfig(), Deps{
		Perception: spatial.NewField(10),
		Overlaps:   spatial.DefaultReach(),
		Visibility: scene,
		Blocker:    scene,
		Registry:   registry,
		Publisher:  events,
	})
	if err != nil {
		t.Fatalf("unexpected world error: %v", err)
	}
	scene.Track(w.Characters)
	return &testWorld{World: w, registry: registry, events: events}
}

func (w *testWorld) advance(n int, cmds ...Command) {
	for i := 0; i < n; i++ {
		w.tick++
		if i == 0 {
			_ = w.Apply(cmds)
		}
		w.Step(w.tick, testDt)
	}
}

func TestNewWorldRequiresCollaborators(t *testing.T) {
	if _, err := NewWorld(DefaultWorldConfig(), Deps{}); !errors.Is(err, ErrMissingAuthority) {
		t.Fatalf("expected missing authority error, got %v", err)
	}
	if _, err := NewStandaloneWorld(DefaultWorldConfig(), Deps{Perception: spatial.NewField(1)}); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("expected missing collaborator error, got %v", err)
	}
}

func TestEnemyChasesAndHitsOncePerWindow(t *testing.T) {
	w := newTestWorld(t)
	w.advance(1, Command{ActorID: "player-1", Type: CommandJoin}, Command{Type: CommandSpawnEnemy})

	chars := w.Characters()
	if len(chars) != 2 {
		t.Fatalf("expected player and enemy, got %d characters", len(chars))
	}
	player, enemy := chars[0], chars[1]
	windows := 0
	enemy.Combat().OnAttackStarted(func(combat.Started) { windows++ })
	hits := 0
	player.Health().OnHealthChanged(func(health.Changed) { hits++ })

	w.advance(120)

	brain, ok := w.Brain(enemy.EntityID())
	if !ok {
		t.Fatalf("expected enemy brain on the authoritative world")
	}
	if windows == 0 {
		t.Fatalf("expected enemy to close in and attack, state=%s pos=%+v", brain.State(), enemy.Position())
	}
	if hits != windows {
		t.Fatalf("expected one hit per attack window, got %d hits over %d windows", hits, windows)
	}
	if got, want := player.Health().CurrentHealth(), 100-10*hits; got != want {
		t.Fatalf("expected player health %d, got %d", want, got)
	}
	if d := geom.Distance(enemy.Position(), player.Position()); d > w.Config().AI.StoppingDistance {
		t.Fatalf("expected enemy to hold inside attack range, distance %v", d)
	}
	if len(w.events.EventsOfType(loggingcombat.EventHit)) != hits {
		t.Fatalf("expected a hit event per hit")
	}
}

func TestEnemyAttacksTargetInsideItsRadius(t *testing.T) {
	w := newTestWorld(t)
	w.advance(1,
		Command{ActorID: "player-1", Type: CommandJoin},
		Command{Type: CommandSpawnEnemy, Spawn: &SpawnCommand{X: 0.3, Y: 0}},
	)
	player, _ := w.Character("player-1")
	enemy := w.Characters()[1]
	windows := 0
	enemy.Combat().OnAttackStarted(func(combat.Started) { windows++ })

	w.advance(30)

	if windows == 0 {
		brain, _ := w.Brain(enemy.EntityID())
		t.Fatalf("expected enemy to attack at point-blank range, state=%s", brain.State())
	}
	if player.Health().CurrentHealth() >= 100 {
		t.Fatalf("expected the point-blank swing to land, health=%d", player.Health().CurrentHealth())
	}
}

func TestKilledEnemyIsRemovedAfterDelay(t *testing.T) {
	w := newTestWorld(t)
	w.advance(1,
		Command{ActorID: "player-1", Type: CommandJoin},
		Command{Type: CommandSpawnEnemy, Spawn: &SpawnCommand{X: 1.2, Y: 0}},
	)
	enemy := w.Characters()[1]
	enemyID := enemy.EntityID()
	if w.registry.Len() != 2 {
		t.Fatalf("expected both characters registered, got %d", w.registry.Len())
	}

	w.advance(1, Command{ActorID: "player-1", Type: CommandAttack})
	w.advance(int(w.Config().PlayerCombat.WindowTicks))
	w.advance(1, Command{ActorID: "player-1", Type: CommandAttack})

	if enemy.IsAlive() {
		t.Fatalf("expected two swings to kill the enemy, health=%d", enemy.Health().CurrentHealth())
	}
	brain, _ := w.Brain(enemyID)
	if brain.State() != ai.StateDead {
		t.Fatalf("expected dead state, got %s", brain.State())
	}
	deathTick := w.tick

	w.advance(int(w.Config().AI.DeathRemovalTicks) - 1)
	if _, ok := w.Character(enemyID); !ok {
		t.Fatalf("enemy removed before the death delay elapsed")
	}
	w.advance(1)
	if _, ok := w.Character(enemyID); ok {
		t.Fatalf("expected enemy removal at tick %d", deathTick+w.Config().AI.DeathRemovalTicks)
	}
	if w.registry.Len() != 1 {
		t.Fatalf("expected registry release on removal, got %d", w.registry.Len())
	}
}

func TestMoveCommandAndBlocker(t *testing.T) {
	w := newTestWorld(t)
	w.advance(1, Command{ActorID: "player-1", Type: CommandJoin})
	player, _ := w.Character("player-1")

	w.advance(1, Command{ActorID: "player-1", Type: CommandMove, Move: &MoveCommand{X: 0, Y: 2}})
	if !player.IsMoving() {
		t.Fatalf("expected move command to start movement")
	}
	w.advance(30)
	if math.Abs(player.Position().Y-2) > player.Movement().ArriveThreshold {
		t.Fatalf("expected to arrive at destination, got %+v", player.Position())
	}

	_ = w.Apply([]Command{{ActorID: "player-1", Type: CommandHeal, Heal: &HealCommand{Amount: -5}}})
	if player.Health().CurrentHealth() != 100 {
		t.Fatalf("expected non-positive heal to be ignored")
	}
}

func TestLoopThrottlesPerActor(t *testing.T) {
	w := newTestWorld(t)
	cfg := DefaultLoopConfig()
	cfg.PerActorLimit = 2
	var drops []string
	loop := NewLoop(w, cfg, LoopHooks{OnCommandDrop: func(reason string, _ Command) { drops = append(drops, reason) }}, LoopDeps{})

	loop.Enqueue(Command{ActorID: "player-1", Type: CommandJoin})
	loop.Enqueue(Command{ActorID: "player-1", Type: CommandAttack})
	loop.Enqueue(Command{ActorID: "player-1", Type: CommandAttack})
	if len(drops) != 1 || drops[0] != CommandRejectQueueLimit {
		t.Fatalf("expected one throttled command, got %v", drops)
	}

	result := loop.Advance(LoopTickContext{Tick: 1, Delta: testDt})
	if len(result.Commands) != 2 || result.Tick != 1 {
		t.Fatalf("unexpected step result: %+v", result)
	}
	if ok, _ := loop.Enqueue(Command{ActorID: "player-1", Type: CommandAttack}); !ok {
		t.Fatalf("expected per-actor budget to reset after drain")
	}
}
