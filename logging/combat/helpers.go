package combat

import (
	"context"

	"github.com/MurkesM/ARPG/logging"
)

const (
	// EventAttackStarted is emitted when an attack window opens.
	EventAttackStarted logging.EventType = "combat.attack_started"
	// EventAttackEnded is emitted when an attack window closes.
	EventAttackEnded logging.EventType = "combat.attack_ended"
	// EventHit is emitted when a swing registers a target for damage.
	EventHit logging.EventType = "combat.hit"
	// EventHealthChanged is emitted for every applied health delta.
	EventHealthChanged logging.EventType = "combat.health_changed"
	// EventKilled is emitted when an entity dies.
	EventKilled logging.EventType = "combat.killed"
)

// AttackPayload describes an attack window transition.
type AttackPayload struct {
	Kind string `json:"kind"`
	Hits int    `json:"hits,omitempty"`
}

// HitPayload captures the damage requested for a target.
type HitPayload struct {
	Kind   string `json:"kind"`
	Damage int    `json:"damage"`
}

// HealthPayload captures the result of an applied delta.
type HealthPayload struct {
	Delta   int `json:"delta"`
	Current int `json:"current"`
	Max     int `json:"max,omitempty"`
}

// KilledPayload captures the health at the moment of death.
type KilledPayload struct {
	Health int `json:"health"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryCombat
	pub.Publish(ctx, event)
}

// AttackStarted publishes a window-open event.
func AttackStarted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AttackPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventAttackStarted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

// AttackEnded publishes a window-close event.
func AttackEnded(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AttackPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventAttackEnded,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

// Hit publishes a registered hit.
func Hit(ctx context.Context, pub logging.Publisher, tick uint64, actor, target logging.EntityRef, payload HitPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventHit,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// HealthChanged publishes an applied delta. requestID links it to the change
// request that caused it.
func HealthChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, requestID string, payload HealthPayload) {
	publish(ctx, pub, logging.Event{
		Type:      EventHealthChanged,
		Tick:      tick,
		Actor:     actor,
		Severity:  logging.SeverityInfo,
		Payload:   payload,
		RequestID: requestID,
	})
}

// Killed publishes a death.
func Killed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload KilledPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventKilled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}
