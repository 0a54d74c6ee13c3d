package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/MurkesM/ARPG/internal/event"
	"github.com/MurkesM/ARPG/internal/health"
)

// Status is the floating indicator content for one entity.
type Status struct {
	EntityID string
	Current  int
	Max      int
	Alive    bool
}

// StatusIndicator tracks health changes of one entity for display.
type StatusIndicator struct {
	entityID string
	notify   func(Status)
	released atomic.Bool

	mu     sync.Mutex
	status Status
}

// Status returns the latest indicator content.
func (s *StatusIndicator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Released reports whether the indicator was released.
func (s *StatusIndicator) Released() bool { return s.released.Load() }

// Release detaches the indicator. The ledger subscription is only touched
// from the ledger owner's goroutine, so it is dropped on the next change.
func (s *StatusIndicator) Release() { s.released.Store(true) }

type ledgerOwner interface {
	Health() *health.Ledger
}

// StatusIndicators returns a factory that binds a StatusIndicator to every
// entity exposing a health ledger. notify receives each update and may be nil.
func StatusIndicators(notify func(Status)) HandleFactory {
	return HandleFactoryFunc(func(e Entity) Handle {
		indicator := &StatusIndicator{entityID: e.EntityID(), notify: notify}
		owner, ok := e.(ledgerOwner)
		if !ok || owner.Health() == nil {
			return indicator
		}
		ledger := owner.Health()
		indicator.status = Status{
			EntityID: indicator.entityID,
			Current:  ledger.CurrentHealth(),
			Max:      ledger.MaxHealth(),
			Alive:    ledger.IsAlive(),
		}

		var sub event.Subscription
		sub = ledger.OnHealthChanged(func(ev health.Changed) {
			if indicator.released.Load() {
				ledger.StopHealthChanged(sub)
				return
			}
			indicator.mu.Lock()
			indicator.status.Current = ev.Current
			indicator.status.Alive = ledger.IsAlive() && ev.Current > 0
			status := indicator.status
			indicator.mu.Unlock()
			if indicator.notify != nil {
				indicator.notify(status)
			}
		})
		return indicator
	})
}
