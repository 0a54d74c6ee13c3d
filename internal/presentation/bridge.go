// Package presentation forwards fire-and-forget notifications to whatever
// renders the session. The core never waits for a response.
package presentation

import (
	"context"
	"sync"

	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/internal/lifecycle"
	"github.com/MurkesM/ARPG/logging"
	logginglifecycle "github.com/MurkesM/ARPG/logging/lifecycle"
	loggingsimulation "github.com/MurkesM/ARPG/logging/simulation"
)

// Kind names a presentation notification.
type Kind string

const (
	KindMoveStarted   Kind = "move_started"
	KindMoveStopped   Kind = "move_stopped"
	KindAttackStarted Kind = "attack_started"
	KindAttackEnded   Kind = "attack_ended"
	KindHealthChanged Kind = "health_changed"
	KindKilled        Kind = "killed"
	KindSpawned       Kind = "spawned"
	KindDestroyed     Kind = "destroyed"
	KindStatus        Kind = "status"
)

// Notification is a single presentation cue.
type Notification struct {
	Kind     Kind
	EntityID string
	Tick     uint64
	Payload  any
}

// Bridge receives presentation notifications.
type Bridge interface {
	Notify(n Notification)
}

// BridgeFunc adapts a function into a Bridge.
type BridgeFunc func(n Notification)

// Notify implements Bridge.
func (f BridgeFunc) Notify(n Notification) {
	if f == nil {
		return
	}
	f(n)
}

// Nop discards every notification.
var Nop Bridge = BridgeFunc(nil)

// Attach subscribes bridge to every notification source owned by c.
func Attach(bridge Bridge, c *character.Character, tick func() uint64) {
	if bridge == nil || c == nil {
		return
	}
	if tick == nil {
		tick = func() uint64 { return 0 }
	}
	id := c.EntityID()
	send := func(kind Kind, payload any) {
		bridge.Notify(Notification{Kind: kind, EntityID: id, Tick: tick(), Payload: payload})
	}

	c.OnMoveStarted(func(ev character.MoveStarted) { send(KindMoveStarted, ev) })
	c.OnMoveStopped(func(ev character.MoveStopped) { send(KindMoveStopped, ev) })
	c.Combat().OnAttackStarted(func(ev combat.Started) { send(KindAttackStarted, ev) })
	c.Combat().OnAttackEnded(func(ev combat.Ended) { send(KindAttackEnded, ev) })
	c.Health().OnHealthChanged(func(ev health.Changed) { send(KindHealthChanged, ev) })
	c.Health().OnKilled(func(ev health.Killed) { send(KindKilled, ev) })
}

// AttachRegistry forwards registry spawn and destroy notifications until the
// returned detach func is called.
func AttachRegistry(bridge Bridge, registry *lifecycle.Registry) (detach func()) {
	if bridge == nil || registry == nil {
		return func() {}
	}
	spawned := registry.OnSpawned(func(ev lifecycle.Spawned) {
		bridge.Notify(Notification{Kind: KindSpawned, EntityID: ev.EntityID, Payload: ev})
	})
	destroyed := registry.OnDestroyed(func(ev lifecycle.Destroyed) {
		bridge.Notify(Notification{Kind: KindDestroyed, EntityID: ev.EntityID, Payload: ev})
	})
	var once sync.Once
	return func() { once.Do(func() { registry.Unsubscribe(spawned, destroyed) }) }
}

// StatusNotifier adapts a bridge into the status indicator callback.
func StatusNotifier(bridge Bridge) func(lifecycle.Status) {
	if bridge == nil {
		return nil
	}
	return func(s lifecycle.Status) {
		bridge.Notify(Notification{Kind: KindStatus, EntityID: s.EntityID, Payload: s})
	}
}

// Publishing renders movement and lifecycle notifications as log events.
// Combat notifications are already published by the combat telemetry
// recorders. lookup resolves entity references.
func Publishing(pub logging.Publisher, lookup func(id string) logging.EntityRef) Bridge {
	if pub == nil {
		return Nop
	}
	if lookup == nil {
		lookup = func(id string) logging.EntityRef { return logging.EntityRef{ID: id} }
	}
	ctx := context.Background()
	return BridgeFunc(func(n Notification) {
		actor := lookup(n.EntityID)
		switch n.Kind {
		case KindMoveStarted:
			if ev, ok := n.Payload.(character.MoveStarted); ok {
				loggingsimulation.MoveStarted(ctx, pub, n.Tick, actor, loggingsimulation.MovePayload{X: ev.Destination.X, Y: ev.Destination.Y})
			}
		case KindMoveStopped:
			if ev, ok := n.Payload.(character.MoveStopped); ok {
				loggingsimulation.MoveStopped(ctx, pub, n.Tick, actor, loggingsimulation.MovePayload{X: ev.Position.X, Y: ev.Position.Y})
			}
		case KindSpawned:
			logginglifecycle.Spawned(ctx, pub, n.Tick, actor, logginglifecycle.SpawnedPayload{})
		case KindDestroyed:
			logginglifecycle.Destroyed(ctx, pub, n.Tick, actor, logginglifecycle.DestroyedPayload{Reason: "released"})
		}
	})
}
