package perception

import (
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/event"
)

// Emptied is emitted when the last target leaves.
type Emptied struct {
	EntityID string
}

// Acquisition maintains the target set of one perceiving entity from
// perception enter and exit reports.
type Acquisition struct {
	ownerID  string
	faction  combat.Faction
	targets  TargetSet
	disabled bool

	emptied event.List[Emptied]
}

// NewAcquisition builds acquisition for an entity on the given side. Only
// opposing factions are ever admitted.
func NewAcquisition(ownerID string, faction combat.Faction) *Acquisition {
	return &Acquisition{ownerID: ownerID, faction: faction}
}

// OnEnter handles a perception enter report.
func (a *Acquisition) OnEnter(c Candidate) bool {
	if a == nil || a.disabled || c == nil {
		return false
	}
	if c.EntityID() == a.ownerID || !a.faction.Opposes(c.Faction()) {
		return false
	}
	return a.targets.Add(c)
}

// OnExit handles a perception exit report.
func (a *Acquisition) OnExit(id string) bool {
	if a == nil || a.disabled {
		return false
	}
	if !a.targets.Remove(id) {
		return false
	}
	if a.targets.Len() == 0 {
		a.emptied.Emit(Emptied{EntityID: a.ownerID})
	}
	return true
}

// Primary returns the current target.
func (a *Acquisition) Primary() (Candidate, bool) {
	if a == nil {
		return nil, false
	}
	return a.targets.Primary()
}

// Targets exposes the ordered set for inspection.
func (a *Acquisition) Targets() *TargetSet { return &a.targets }

// Disable stops accepting perception updates and clears the set. Used when
// the owner dies.
func (a *Acquisition) Disable() {
	if a == nil || a.disabled {
		return
	}
	a.disabled = true
	a.targets.Clear()
	a.emptied.Close()
}

// Disabled reports whether perception has been stopped.
func (a *Acquisition) Disabled() bool { return a != nil && a.disabled }

// OnEmptied subscribes to the set becoming empty.
func (a *Acquisition) OnEmptied(fn func(Emptied)) event.Subscription {
	return a.emptied.Subscribe(fn)
}

// StopEmptied removes a listener registered through OnEmptied.
func (a *Acquisition) StopEmptied(id event.Subscription) {
	a.emptied.Unsubscribe(id)
}

// Report is one enter or exit edge from the spatial perception source.
type Report struct {
	ViewerID string
	Subject  Candidate
	Entered  bool
}

// Apply routes a report to OnEnter or OnExit.
func (a *Acquisition) Apply(r Report) bool {
	if r.Subject == nil {
		return false
	}
	if r.Entered {
		return a.OnEnter(r.Subject)
	}
	return a.OnExit(r.Subject.EntityID())
}
