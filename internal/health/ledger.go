package health

import (
	"errors"
	"fmt"

	"github.com/MurkesM/ARPG/internal/event"
)

var (
	// ErrMissingAuthority is returned when a ledger is built without the
	// collaborator that decides its health changes.
	ErrMissingAuthority = errors.New("health: authority is required")
	// ErrInvalidMaxHealth is returned for a non-positive maximum.
	ErrInvalidMaxHealth = errors.New("health: max health must be positive")
)

// Changed is emitted once per applied delta.
type Changed struct {
	EntityID string
	Current  int
	Delta    int
}

// Killed is emitted the first time health reaches zero or below.
type Killed struct {
	EntityID string
	Health   int
}

// Authority decides whether and how a requested delta is applied. On the
// authoritative node it applies the delta and broadcasts the result; on an
// observer it forwards the request.
type Authority interface {
	AuthorizeHealthChange(l *Ledger, delta int)
}

// AuthorityFunc adapts a function into an Authority.
type AuthorityFunc func(l *Ledger, delta int)

// AuthorizeHealthChange implements Authority.
func (f AuthorityFunc) AuthorizeHealthChange(l *Ledger, delta int) {
	if f == nil {
		return
	}
	f(l, delta)
}

// Standalone applies every request immediately. Single-node sessions and
// tests use it.
var Standalone Authority = AuthorityFunc(func(l *Ledger, delta int) {
	l.ApplyHealthChange(delta)
})

// Ledger tracks the health of a single entity. It is owned and mutated by
// that entity's tick goroutine only.
type Ledger struct {
	entityID  string
	current   int
	max       int
	alive     bool
	authority Authority

	changed event.List[Changed]
	killed  event.List[Killed]
}

// NewLedger constructs a ledger at full health.
func NewLedger(entityID string, maxHealth int, authority Authority) (*Ledger, error) {
	if authority == nil {
		return nil, fmt.Errorf("ledger %q: %w", entityID, ErrMissingAuthority)
	}
	if maxHealth <= 0 {
		return nil, fmt.Errorf("ledger %q: %w", entityID, ErrInvalidMaxHealth)
	}
	return &Ledger{
		entityID:  entityID,
		current:   maxHealth,
		max:       maxHealth,
		alive:     true,
		authority: authority,
	}, nil
}

// Restore rebuilds a ledger from replicated state. Observers use it when a
// snapshot arrives for an entity that is already damaged or dead.
func Restore(entityID string, current, maxHealth int, alive bool, authority Authority) (*Ledger, error) {
	l, err := NewLedger(entityID, maxHealth, authority)
	if err != nil {
		return nil, err
	}
	l.current = current
	l.alive = alive
	return l, nil
}

// EntityID returns the owning entity identifier.
func (l *Ledger) EntityID() string { return l.entityID }

// CurrentHealth returns the signed health value.
func (l *Ledger) CurrentHealth() int { return l.current }

// MaxHealth returns the configured maximum.
func (l *Ledger) MaxHealth() int { return l.max }

// IsAlive reports whether the entity has not yet been killed.
func (l *Ledger) IsAlive() bool { return l.alive }

// TryApplyHealthChange routes delta to the authority. Negative values damage,
// positive values heal. Dead entities ignore every request.
func (l *Ledger) TryApplyHealthChange(delta int) {
	if l == nil || !l.alive {
		return
	}
	l.authority.AuthorizeHealthChange(l, delta)
}

// ApplyHealthChange mutates health. The authority calls it when it accepts a
// request and every observer calls it when the applied result arrives. It
// reports whether the delta was applied.
func (l *Ledger) ApplyHealthChange(delta int) bool {
	if l == nil || !l.alive {
		return false
	}
	l.current += delta
	l.changed.Emit(Changed{EntityID: l.entityID, Current: l.current, Delta: delta})
	if l.current <= 0 && l.alive {
		l.alive = false
		l.killed.Emit(Killed{EntityID: l.entityID, Health: l.current})
	}
	return true
}

// OnHealthChanged subscribes to applied deltas.
func (l *Ledger) OnHealthChanged(fn func(Changed)) event.Subscription {
	return l.changed.Subscribe(fn)
}

// OnKilled subscribes to the single death notification.
func (l *Ledger) OnKilled(fn func(Killed)) event.Subscription {
	return l.killed.Subscribe(fn)
}

// StopHealthChanged removes a listener registered through OnHealthChanged.
func (l *Ledger) StopHealthChanged(id event.Subscription) {
	l.changed.Unsubscribe(id)
}

// StopKilled removes a listener registered through OnKilled.
func (l *Ledger) StopKilled(id event.Subscription) {
	l.killed.Unsubscribe(id)
}

// Close tears down every subscription. Called when the owning entity is
// destroyed.
func (l *Ledger) Close() {
	l.changed.Close()
	l.killed.Close()
}
