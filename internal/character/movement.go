package character

import (
	"math"

	"github.com/MurkesM/ARPG/internal/event"
	"github.com/MurkesM/ARPG/internal/geom"
)

// MovementConfig carries locomotion tuning.
type MovementConfig struct {
	// MoveSpeed is in units per second.
	MoveSpeed float64
	// RotationSpeed is in degrees per second.
	RotationSpeed   float64
	ArriveThreshold float64
}

// DefaultMovementConfig returns the prototype tuning.
func DefaultMovementConfig() MovementConfig {
	return MovementConfig{MoveSpeed: 5, RotationSpeed: 720, ArriveThreshold: 0.1}
}

// StopReason explains why movement ended.
type StopReason string

const (
	StopArrived   StopReason = "arrived"
	StopSuspended StopReason = "suspended"
	StopHalted    StopReason = "halted"
)

// MoveStarted is emitted when locomotion begins.
type MoveStarted struct {
	EntityID    string
	Destination geom.Vec2
}

// MoveStopped is emitted when locomotion ends.
type MoveStopped struct {
	EntityID string
	Position geom.Vec2
	Reason   StopReason
}

// Mover is tick-counted move-to-point state, polled once per tick.
type Mover struct {
	Active       bool
	Destination  geom.Vec2
	StopDistance float64
	Tolerance    float64
	StartedTick  uint64
	ElapsedTicks uint64
	Done         bool
}

// Mover returns a copy of the movement state.
func (c *Character) Mover() Mover { return c.mover }

// IsMoving reports whether a movement command is in progress.
func (c *Character) IsMoving() bool { return c.mover.Active }

// MoveTo starts moving toward point, replacing any previous command. It is
// rejected while attacking or dead.
func (c *Character) MoveTo(point geom.Vec2, tick uint64) bool {
	return c.approach(point, 0, c.movement.ArriveThreshold, tick)
}

// Follow moves toward point and stops stopDistance short of it. Repeated calls
// retarget the active command without restarting it.
func (c *Character) Follow(point geom.Vec2, stopDistance float64, tick uint64) bool {
	return c.approach(point, stopDistance, followTolerance, tick)
}

const followTolerance = 1e-6

func (c *Character) approach(point geom.Vec2, stopDistance, tolerance float64, tick uint64) bool {
	if !c.ledger.IsAlive() || c.session.IsAttacking() {
		return false
	}
	wasActive := c.mover.Active
	c.mover.Destination = point
	c.mover.StopDistance = stopDistance
	c.mover.Tolerance = tolerance
	if wasActive {
		return true
	}
	c.mover = Mover{Active: true, Destination: point, StopDistance: stopDistance, Tolerance: tolerance, StartedTick: tick}
	c.moveStarted.Emit(MoveStarted{EntityID: c.id, Destination: point})
	return true
}

// Halt cancels movement.
func (c *Character) Halt() { c.stop(StopHalted) }

func (c *Character) suspendMovement() { c.stop(StopSuspended) }

func (c *Character) stop(reason StopReason) {
	if !c.mover.Active {
		return
	}
	c.mover.Active = false
	c.mover.Done = reason == StopArrived
	c.moveStopped.Emit(MoveStopped{EntityID: c.id, Position: c.position, Reason: reason})
}

// Step advances an active movement command by dt seconds. Position moves by
// at most MoveSpeed*dt and never past the stop distance; facing rotates toward
// the travel direction by at most RotationSpeed*dt. It reports whether the
// pose changed.
func (c *Character) Step(dt float64) bool {
	if !c.mover.Active {
		return false
	}
	if c.session.IsAttacking() || !c.ledger.IsAlive() {
		c.suspendMovement()
		return false
	}
	c.mover.ElapsedTicks++

	delta := c.mover.Destination.Sub(c.position)
	remaining := delta.Len() - c.mover.StopDistance
	if remaining <= c.mover.Tolerance {
		c.stop(StopArrived)
		return false
	}
	c.facing = geom.RotateTowards(c.facing, geom.Heading(delta), geom.Radians(c.movement.RotationSpeed)*dt)
	step := math.Min(c.movement.MoveSpeed*dt, remaining)
	c.position = c.position.Add(delta.Normalize().Scale(step))
	if remaining-step <= c.mover.Tolerance {
		c.stop(StopArrived)
	}
	return true
}

// TurnTowards rotates facing toward point without moving. It reports whether
// facing changed.
func (c *Character) TurnTowards(point geom.Vec2, dt float64) bool {
	if c.session.IsAttacking() || !c.ledger.IsAlive() {
		return false
	}
	delta := point.Sub(c.position)
	if delta.IsZero() {
		return false
	}
	next := geom.RotateTowards(c.facing, geom.Heading(delta), geom.Radians(c.movement.RotationSpeed)*dt)
	if next == c.facing {
		return false
	}
	c.facing = next
	return true
}

// OnMoveStarted subscribes to movement starts.
func (c *Character) OnMoveStarted(fn func(MoveStarted)) event.Subscription {
	return c.moveStarted.Subscribe(fn)
}

// OnMoveStopped subscribes to movement stops.
func (c *Character) OnMoveStopped(fn func(MoveStopped)) event.Subscription {
	return c.moveStopped.Subscribe(fn)
}
