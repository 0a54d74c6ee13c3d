package presentation

import (
	"testing"

	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/internal/lifecycle"
	loggingsimulation "github.com/MurkesM/ARPG/logging/simulation"
	"github.com/MurkesM/ARPG/logging/sinks"
)

func TestAttachForwardsCharacterNotifications(t *testing.T) {
	c, err := character.New(character.Config{
		ID:              "p1",
		Faction:         combat.FactionPlayer,
		MaxHealth:       50,
		HealthAuthority: health.Standalone,
		CombatAuthority: combat.Standalone,
	})
	if err != nil {
		t.Fatalf("unexpected character error: %v", err)
	}
	var kinds []Kind
	Attach(BridgeFunc(func(n Notification) { kinds = append(kinds, n.Kind) }), c, func() uint64 { return 7 })

	c.MoveTo(geom.Vec2{X: 3}, 7)
	c.Combat().PrimaryAttack()
	c.Combat().OnAttackWindowEnd()
	c.TryApplyHealthChange(-60)

	want := []Kind{KindMoveStarted, KindMoveStopped, KindAttackStarted, KindAttackEnded, KindHealthChanged, KindKilled}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("notification %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestPublishingBridgeRendersMovement(t *testing.T) {
	memory := sinks.NewMemorySink()
	bridge := Publishing(memory, nil)

	bridge.Notify(Notification{Kind: KindMoveStarted, EntityID: "p1", Payload: character.MoveStarted{EntityID: "p1", Destination: geom.Vec2{X: 1, Y: 2}}})
	bridge.Notify(Notification{Kind: KindHealthChanged, EntityID: "p1"})

	events := memory.EventsOfType(loggingsimulation.EventMoveStarted)
	if len(events) != 1 || len(memory.Events()) != 1 {
		t.Fatalf("expected exactly one move event, got %d of %d", len(events), len(memory.Events()))
	}
	payload, ok := events[0].Payload.(loggingsimulation.MovePayload)
	if !ok || payload.X != 1 || payload.Y != 2 {
		t.Fatalf("unexpected payload: %#v", events[0].Payload)
	}
}

func TestAttachRegistryForwardsLifecycle(t *testing.T) {
	registry := lifecycle.NewRegistry(nil)
	var kinds []Kind
	detach := AttachRegistry(BridgeFunc(func(n Notification) { kinds = append(kinds, n.Kind) }), registry)

	c, _ := character.New(character.Config{ID: "npc-1", Faction: combat.FactionEnemy, MaxHealth: 10, HealthAuthority: health.Standalone, CombatAuthority: combat.Standalone})
	registry.Spawn(c)
	registry.Destroy("npc-1")

	if len(kinds) != 2 || kinds[0] != KindSpawned || kinds[1] != KindDestroyed {
		t.Fatalf("unexpected lifecycle notifications: %v", kinds)
	}

	detach()
	detach()
	other, _ := character.New(character.Config{ID: "npc-2", Faction: combat.FactionEnemy, MaxHealth: 10, HealthAuthority: health.Standalone, CombatAuthority: combat.Standalone})
	registry.Spawn(other)
	registry.Destroy("npc-2")
	if len(kinds) != 2 {
		t.Fatalf("expected no notifications after detach, got %v", kinds)
	}
}
