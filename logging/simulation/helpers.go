package simulation

import (
	"context"
	"time"

	"github.com/MurkesM/ARPG/logging"
)

const (
	// EventAIStateChanged is emitted on every enemy state transition.
	EventAIStateChanged logging.EventType = "ai.state_changed"
	// EventMoveStarted is emitted when an entity starts moving.
	EventMoveStarted logging.EventType = "simulation.move_started"
	// EventMoveStopped is emitted when an entity stops moving.
	EventMoveStopped logging.EventType = "simulation.move_stopped"
	// EventTickBudgetExceeded is emitted when a tick overruns its budget.
	EventTickBudgetExceeded logging.EventType = "simulation.tick_budget_exceeded"
)

// StatePayload describes a state transition.
type StatePayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Target string `json:"target,omitempty"`
}

// MovePayload describes a movement change.
type MovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TickBudgetPayload describes an overrunning tick.
type TickBudgetPayload struct {
	DurationMillis int64 `json:"durationMillis"`
	BudgetMillis   int64 `json:"budgetMillis"`
}

// AIStateChanged publishes an enemy state transition.
func AIStateChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StatePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAIStateChanged,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryAI,
		Payload:  payload,
	})
}

// MoveStarted publishes a movement start.
func MoveStarted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MovePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMoveStarted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

// MoveStopped publishes a movement stop.
func MoveStopped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MovePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMoveStopped,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

// TickBudgetExceeded publishes a tick overrun warning.
func TickBudgetExceeded(ctx context.Context, pub logging.Publisher, tick uint64, duration, budget time.Duration) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetExceeded,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload: TickBudgetPayload{
			DurationMillis: duration.Milliseconds(),
			BudgetMillis:   budget.Milliseconds(),
		},
	})
}

// EventCommandRejected is emitted when the loop refuses a command.
const EventCommandRejected logging.EventType = "simulation.command_rejected"

// CommandRejectedPayload describes a refused command. Count is the number of
// rejections for the actor so far.
type CommandRejectedPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
	Count   uint64 `json:"count,omitempty"`
}

// CommandRejected publishes a command dropped by backpressure.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandRejectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}
