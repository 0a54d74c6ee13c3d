package lifecycle

import (
	"context"

	"github.com/MurkesM/ARPG/logging"
)

const (
	// EventSpawned is emitted when a character is registered.
	EventSpawned logging.EventType = "lifecycle.spawned"
	// EventDestroyed is emitted when a character is removed.
	EventDestroyed logging.EventType = "lifecycle.destroyed"
	// EventPlayerJoined is emitted when a player joins the session.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerLeft is emitted when a player leaves the session.
	EventPlayerLeft logging.EventType = "lifecycle.player_left"
)

// SpawnedPayload captures spawn metadata.
type SpawnedPayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	MaxHealth int     `json:"maxHealth"`
}

// DestroyedPayload captures why a character was removed.
type DestroyedPayload struct {
	Reason string `json:"reason"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryLifecycle
	event.Severity = logging.SeverityInfo
	pub.Publish(ctx, event)
}

// Spawned publishes a spawn event.
func Spawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SpawnedPayload) {
	publish(ctx, pub, logging.Event{Type: EventSpawned, Tick: tick, Actor: actor, Payload: payload})
}

// Destroyed publishes a removal event.
func Destroyed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DestroyedPayload) {
	publish(ctx, pub, logging.Event{Type: EventDestroyed, Tick: tick, Actor: actor, Payload: payload})
}

// PlayerJoined publishes a join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SpawnedPayload) {
	publish(ctx, pub, logging.Event{Type: EventPlayerJoined, Tick: tick, Actor: actor, Payload: payload})
}

// PlayerLeft publishes a leave event.
func PlayerLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DestroyedPayload) {
	publish(ctx, pub, logging.Event{Type: EventPlayerLeft, Tick: tick, Actor: actor, Payload: payload})
}
