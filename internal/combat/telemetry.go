package combat

import (
	"context"

	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/logging"
	loggingcombat "github.com/MurkesM/ARPG/logging/combat"
)

// TelemetryRecorderConfig captures the dependencies required to publish
// combat telemetry events from within the combat package.
type TelemetryRecorderConfig struct {
	Publisher    logging.Publisher
	LookupEntity func(id string) logging.EntityRef
	CurrentTick  func() uint64
	// CurrentRequest returns the replication request being applied, if any.
	CurrentRequest func() string
}

func (cfg TelemetryRecorderConfig) normalized() TelemetryRecorderConfig {
	if cfg.LookupEntity == nil {
		cfg.LookupEntity = func(id string) logging.EntityRef { return logging.EntityRef{ID: id} }
	}
	if cfg.CurrentTick == nil {
		cfg.CurrentTick = func() uint64 { return 0 }
	}
	if cfg.CurrentRequest == nil {
		cfg.CurrentRequest = func() string { return "" }
	}
	return cfg
}

// NewHitTelemetryRecorder constructs a Session.OnHit listener that emits
// combat hit telemetry.
func NewHitTelemetryRecorder(cfg TelemetryRecorderConfig) func(Hit) {
	if cfg.Publisher == nil {
		return nil
	}
	cfg = cfg.normalized()

	return func(hit Hit) {
		loggingcombat.Hit(
			context.Background(),
			cfg.Publisher,
			cfg.CurrentTick(),
			cfg.LookupEntity(hit.AttackerID),
			cfg.LookupEntity(hit.TargetID),
			loggingcombat.HitPayload{Kind: string(hit.Kind), Damage: hit.Damage},
		)
	}
}

// AttachTelemetry subscribes window and hit recorders to s. It is a no-op
// without a publisher.
func AttachTelemetry(s *Session, cfg TelemetryRecorderConfig) {
	if s == nil || cfg.Publisher == nil {
		return
	}
	cfg = cfg.normalized()

	s.OnAttackStarted(func(ev Started) {
		loggingcombat.AttackStarted(context.Background(), cfg.Publisher, cfg.CurrentTick(),
			cfg.LookupEntity(ev.EntityID), loggingcombat.AttackPayload{Kind: string(ev.Kind)})
	})
	s.OnAttackEnded(func(ev Ended) {
		loggingcombat.AttackEnded(context.Background(), cfg.Publisher, cfg.CurrentTick(),
			cfg.LookupEntity(ev.EntityID), loggingcombat.AttackPayload{Kind: string(ev.Kind), Hits: ev.Hits})
	})
	s.OnHit(NewHitTelemetryRecorder(cfg))
}

// AttachHealthTelemetry subscribes change and death recorders to l.
func AttachHealthTelemetry(l *health.Ledger, cfg TelemetryRecorderConfig) {
	if l == nil || cfg.Publisher == nil {
		return
	}
	cfg = cfg.normalized()

	l.OnHealthChanged(func(ev health.Changed) {
		loggingcombat.HealthChanged(context.Background(), cfg.Publisher, cfg.CurrentTick(),
			cfg.LookupEntity(ev.EntityID), cfg.CurrentRequest(),
			loggingcombat.HealthPayload{Delta: ev.Delta, Current: ev.Current, Max: l.MaxHealth()})
	})
	l.OnKilled(func(ev health.Killed) {
		loggingcombat.Killed(context.Background(), cfg.Publisher, cfg.CurrentTick(),
			cfg.LookupEntity(ev.EntityID), loggingcombat.KilledPayload{Health: ev.Health})
	})
}
