package combat

import (
	"testing"

	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/logging"
	loggingcombat "github.com/MurkesM/ARPG/logging/combat"
	"github.com/MurkesM/ARPG/logging/sinks"
)

type ledgerTarget struct {
	ledger  *health.Ledger
	faction Faction
}

func (l ledgerTarget) EntityID() string               { return l.ledger.EntityID() }
func (l ledgerTarget) Faction() Faction               { return l.faction }
func (l ledgerTarget) TryApplyHealthChange(delta int) { l.ledger.TryApplyHealthChange(delta) }

func TestNewHitTelemetryRecorderRequiresPublisher(t *testing.T) {
	if recorder := NewHitTelemetryRecorder(TelemetryRecorderConfig{}); recorder != nil {
		t.Fatalf("expected nil recorder without publisher")
	}
}

func TestAttachTelemetryPublishesSwingLifecycle(t *testing.T) {
	memory := sinks.NewMemorySink()
	lookup := func(id string) logging.EntityRef {
		if id == "player-1" {
			return logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer}
		}
		return logging.EntityRef{ID: id, Kind: logging.EntityKindEnemy}
	}

	session, err := NewSession("npc-1", FactionEnemy, DefaultConfig(), Standalone)
	if err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
	ledger, err := health.NewLedger("player-1", 100, health.Standalone)
	if err != nil {
		t.Fatalf("unexpected ledger error: %v", err)
	}
	cfg := TelemetryRecorderConfig{
		Publisher:      memory,
		LookupEntity:   lookup,
		CurrentTick:    func() uint64 { return 42 },
		CurrentRequest: func() string { return "req-1" },
	}
	AttachTelemetry(session, cfg)
	AttachHealthTelemetry(ledger, cfg)

	session.PrimaryAttack()
	session.RegisterHit(ledgerTarget{ledger: ledger, faction: FactionPlayer})
	session.OnAttackWindowEnd()

	want := []logging.EventType{
		loggingcombat.EventAttackStarted,
		loggingcombat.EventHealthChanged,
		loggingcombat.EventHit,
		loggingcombat.EventAttackEnded,
	}
	events := memory.Events()
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, events[i].Type)
		}
		if events[i].Tick != 42 {
			t.Fatalf("event %d: expected tick 42, got %d", i, events[i].Tick)
		}
	}

	hit := events[2]
	if hit.Actor.Kind != logging.EntityKindEnemy || len(hit.Targets) != 1 || hit.Targets[0].ID != "player-1" {
		t.Fatalf("unexpected hit refs: %+v", hit)
	}
	if payload, ok := hit.Payload.(loggingcombat.HitPayload); !ok || payload.Damage != 10 {
		t.Fatalf("unexpected hit payload: %#v", hit.Payload)
	}
	if events[1].RequestID != "req-1" {
		t.Fatalf("expected request id on health change, got %q", events[1].RequestID)
	}
}
