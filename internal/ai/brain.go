package ai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/looplab/fsm"

	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/event"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/internal/perception"
	"github.com/MurkesM/ARPG/internal/telemetry"
)

// ErrMissingCharacter is returned when a brain is built without a body.
var ErrMissingCharacter = errors.New("ai: character is required")

// States of the enemy decision loop.
const (
	StateIdle      = "idle"
	StateChasing   = "chasing"
	StateAttacking = "attacking"
	StateDead      = "dead"
)

const (
	eventChase     = "chase"
	eventEngage    = "engage"
	eventDisengage = "disengage"
	eventDie       = "die"
)

// approachSlack keeps a chase stopping just inside the attack range.
const approachSlack = 0.05

// Config carries decision tuning.
type Config struct {
	// StoppingDistance is both the chase stop distance and the attack range.
	StoppingDistance  float64
	DeathRemovalTicks uint64
	Sight             perception.SightConfig
}

// DefaultConfig returns the prototype tuning at 30 ticks per second.
func DefaultConfig() Config {
	return Config{
		StoppingDistance:  1.5,
		DeathRemovalTicks: 90,
		Sight:             perception.DefaultSightConfig(),
	}
}

// Target is a perceived entity the brain can locate.
type Target interface {
	perception.Candidate
	Position() geom.Vec2
}

// Transition is emitted on every state change.
type Transition struct {
	EntityID string
	From     string
	To       string
	TargetID string
	Tick     uint64
}

// Brain is the per-enemy decision loop. It runs only where the enemy is
// simulated authoritatively and is polled once per tick.
type Brain struct {
	self       *character.Character
	acq        *perception.Acquisition
	visibility perception.VisibilityQuery
	cfg        Config
	machine    *fsm.FSM
	logger     telemetry.Logger

	tick     uint64
	removeAt uint64
	firing   bool
	pending  []string

	killedSub event.Subscription
	endedSub  event.Subscription
	emptySub  event.Subscription

	transitions event.List[Transition]
}

// NewBrain wires a brain to its character and perception.
func NewBrain(self *character.Character, acq *perception.Acquisition, visibility perception.VisibilityQuery, cfg Config) (*Brain, error) {
	if self == nil {
		return nil, ErrMissingCharacter
	}
	if visibility == nil {
		return nil, fmt.Errorf("brain %q: %w", self.EntityID(), perception.ErrMissingVisibility)
	}
	if acq == nil {
		acq = perception.NewAcquisition(self.EntityID(), self.Faction())
	}
	b := &Brain{self: self, acq: acq, visibility: visibility, cfg: cfg, logger: telemetry.Nop()}

	b.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventChase, Src: []string{StateIdle, StateAttacking}, Dst: StateChasing},
			{Name: eventEngage, Src: []string{StateIdle, StateChasing}, Dst: StateAttacking},
			{Name: eventDisengage, Src: []string{StateChasing, StateAttacking}, Dst: StateIdle},
			{Name: eventDie, Src: []string{StateIdle, StateChasing, StateAttacking}, Dst: StateDead},
		},
		fsm.Callbacks{
			"enter_state":     func(_ context.Context, e *fsm.Event) { b.onEnterState(e) },
			"enter_attacking": func(context.Context, *fsm.Event) { b.self.Combat().PrimaryAttack() },
			"leave_chasing":   func(context.Context, *fsm.Event) { b.self.Halt() },
			"enter_idle":      func(context.Context, *fsm.Event) { b.self.Halt() },
			"enter_dead":      func(context.Context, *fsm.Event) { b.onDeath() },
		},
	)

	b.killedSub = self.Health().OnKilled(func(health.Killed) { b.fire(eventDie) })
	b.endedSub = self.Combat().OnAttackEnded(func(combat.Ended) { b.afterAttack() })
	b.emptySub = acq.OnEmptied(func(perception.Emptied) {
		if b.machine.Is(StateChasing) {
			b.fire(eventDisengage)
		}
	})
	if !self.IsAlive() {
		b.fire(eventDie)
	}
	return b, nil
}

// SetLogger routes state machine failures to logger.
func (b *Brain) SetLogger(logger telemetry.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// State returns the current decision state.
func (b *Brain) State() string { return b.machine.Current() }

// Perception returns the owned target acquisition.
func (b *Brain) Perception() *perception.Acquisition { return b.acq }

// Character returns the body the brain drives.
func (b *Brain) Character() *character.Character { return b.self }

// Tick evaluates the primary target and issues movement or attack commands.
// dt is the tick length in seconds.
func (b *Brain) Tick(tick uint64, dt float64) {
	b.tick = tick
	if b.machine.Is(StateDead) || b.machine.Is(StateAttacking) {
		return
	}
	target, sighting, ok := b.evaluate()
	if !ok {
		if b.machine.Is(StateChasing) {
			b.fire(eventDisengage)
		}
		return
	}
	inRange := sighting.Distance <= b.cfg.StoppingDistance

	switch b.machine.Current() {
	case StateIdle:
		switch {
		case inRange && sighting.Visible && !b.self.Combat().IsAttacking():
			b.fire(eventEngage)
		case !inRange:
			b.fire(eventChase)
			b.self.Follow(target.Position(), b.followDistance(), tick)
		default:
			b.self.TurnTowards(target.Position(), dt)
		}
	case StateChasing:
		if !inRange {
			b.self.Follow(target.Position(), b.followDistance(), tick)
			return
		}
		if sighting.Visible && !b.self.Combat().IsAttacking() {
			b.fire(eventEngage)
			return
		}
		b.self.Halt()
		b.self.TurnTowards(target.Position(), dt)
	}
}

func (b *Brain) followDistance() float64 {
	return math.Max(0, b.cfg.StoppingDistance-approachSlack)
}

func (b *Brain) evaluate() (Target, perception.Sighting, bool) {
	candidate, ok := b.acq.Primary()
	if !ok {
		return nil, perception.Sighting{}, false
	}
	target, ok := candidate.(Target)
	if !ok {
		return nil, perception.Sighting{}, false
	}
	sighting := perception.Evaluate(b.cfg.Sight, b.visibility,
		perception.Viewer{ID: b.self.EntityID(), Position: b.self.Position(), Yaw: b.self.Facing()},
		target.EntityID(), target.Position())
	return target, sighting, true
}

func (b *Brain) afterAttack() {
	if !b.machine.Is(StateAttacking) {
		return
	}
	if _, ok := b.acq.Primary(); ok {
		b.fire(eventChase)
		return
	}
	b.fire(eventDisengage)
}

// fire runs event through the state machine. Events raised from inside a
// callback are queued until the running transition completes.
func (b *Brain) fire(name string) {
	if b.firing {
		b.pending = append(b.pending, name)
		return
	}
	b.firing = true
	defer func() { b.firing = false }()

	queue := []string{name}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if b.machine.Can(next) {
			if err := b.machine.Event(context.Background(), next); err != nil {
				b.logger.Printf("[ai] entity=%s event=%s state=%s: %v", b.self.EntityID(), next, b.machine.Current(), err)
			}
		}
		queue = append(queue, b.pending...)
		b.pending = b.pending[:0]
	}
}

func (b *Brain) onEnterState(e *fsm.Event) {
	var targetID string
	if candidate, ok := b.acq.Primary(); ok {
		targetID = candidate.EntityID()
	}
	b.transitions.Emit(Transition{
		EntityID: b.self.EntityID(),
		From:     e.Src,
		To:       e.Dst,
		TargetID: targetID,
		Tick:     b.tick,
	})
}

func (b *Brain) onDeath() {
	b.acq.Disable()
	b.self.Halt()
	b.self.DisableCollision()
	b.removeAt = b.tick + b.cfg.DeathRemovalTicks
}

// RemovalDue reports whether the death removal delay has elapsed.
func (b *Brain) RemovalDue(tick uint64) bool {
	return b.machine.Is(StateDead) && tick >= b.removeAt
}

// OnTransition subscribes to state changes.
func (b *Brain) OnTransition(fn func(Transition)) event.Subscription {
	return b.transitions.Subscribe(fn)
}

// Close detaches the brain from its character.
func (b *Brain) Close() {
	b.self.Health().StopKilled(b.killedSub)
	b.self.Combat().StopAttackEnded(b.endedSub)
	b.acq.StopEmptied(b.emptySub)
	b.transitions.Close()
}
