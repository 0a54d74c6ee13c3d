package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
	loggingsimulation "github.com/MurkesM/ARPG/logging/simulation"
)

const (
	// CommandRejectQueueLimit means the actor already has PerActorLimit
	// commands staged for the next tick.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull means the shared command buffer is saturated.
	CommandRejectQueueFull = "queue_full"

	metricTickOverruns    = "sim_tick_overruns_total"
	metricCommandsApplied = "sim_commands_applied_total"
)

// Engine is the simulation stepped by a Loop.
type Engine interface {
	Apply(cmds []Command) error
	Step(tick uint64, dt float64) StepResult
}

// LoopConfig tunes the command buffer and tick pacing.
type LoopConfig struct {
	TickRate int
	// CatchupMaxTicks caps the delta of a late tick at this many tick intervals.
	CatchupMaxTicks int
	CommandCapacity int
	PerActorLimit   int
}

// DefaultLoopConfig returns a 30 Hz loop.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickRate:        30,
		CatchupMaxTicks: 3,
		CommandCapacity: 1024,
		PerActorLimit:   8,
	}
}

// LoopTickContext describes the tick being advanced.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult reports what a tick did.
type LoopStepResult struct {
	StepResult
	Now      time.Time
	Delta    float64
	Commands []Command
	Duration time.Duration
	Budget   time.Duration
}

// LoopHooks let the owning node run work inside the tick goroutine.
type LoopHooks struct {
	// Prepare runs before staged commands are applied.
	Prepare   func(ctx LoopTickContext)
	AfterStep func(result LoopStepResult)
	// OnCommandDrop runs on the enqueuing goroutine.
	OnCommandDrop func(reason string, cmd Command)
}

// LoopDeps carries the loop's ambient collaborators.
type LoopDeps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
}

// Loop stages commands from any goroutine and applies them, in order, at the
// start of the next fixed-rate tick.
type Loop struct {
	engine Engine
	buffer *CommandBuffer
	hooks  LoopHooks
	cfg    LoopConfig
	deps   LoopDeps

	mu   sync.Mutex
	gate actorGate
	tick atomic.Uint64
}

// NewLoop wraps engine with a bounded command queue.
func NewLoop(engine Engine, cfg LoopConfig, hooks LoopHooks, deps LoopDeps) *Loop {
	if engine == nil {
		return nil
	}
	defaults := DefaultLoopConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaults.TickRate
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = defaults.CommandCapacity
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.Nop()
	}
	return &Loop{
		engine: engine,
		buffer: NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:  hooks,
		cfg:    cfg,
		deps:   deps,
		gate:   newActorGate(cfg.PerActorLimit),
	}
}

// Config returns the loop tuning.
func (l *Loop) Config() LoopConfig { return l.cfg }

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Enqueue stages a command. It returns false and the reject reason when the
// actor is throttled or the buffer is full. Safe for concurrent use.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	l.mu.Lock()
	reason := ""
	switch {
	case !l.gate.admit(cmd.ActorID):
		reason = CommandRejectQueueLimit
	case !l.buffer.Push(cmd):
		l.gate.release(cmd.ActorID)
		reason = CommandRejectQueueFull
	}
	var count uint64
	if reason != "" {
		count = l.gate.reject(cmd.ActorID)
	}
	l.mu.Unlock()

	if reason == "" {
		return true, ""
	}
	l.rejected(reason, cmd, count)
	return false, reason
}

// Advance runs one tick with the staged commands. Tests and manual stepping
// call it directly; Run calls it on every ticker beat.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	l.tick.Store(ctx.Tick)
	l.mu.Lock()
	commands := l.buffer.Drain()
	l.gate.reset()
	l.mu.Unlock()

	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}
	if err := l.engine.Apply(commands); err != nil {
		l.deps.Logger.Printf("[loop] tick %d: %v", ctx.Tick, err)
	}
	if len(commands) > 0 && l.deps.Metrics != nil {
		l.deps.Metrics.Add(metricCommandsApplied, uint64(len(commands)))
	}
	return LoopStepResult{
		StepResult: l.engine.Step(ctx.Tick, ctx.Delta),
		Now:        ctx.Now,
		Delta:      ctx.Delta,
		Commands:   commands,
	}
}

// Run drives the loop at TickRate until stop closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	clock := l.deps.Clock
	pace := newPacer(l.cfg.TickRate, l.cfg.CatchupMaxTicks, clock.Now())
	ticker := time.NewTicker(pace.budget)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := clock.Now()
			tick++
			result := l.Advance(LoopTickContext{Tick: tick, Now: now, Delta: pace.delta(now)})
			result.Duration = clock.Now().Sub(now)
			result.Budget = pace.budget
			if result.Duration > result.Budget {
				if l.deps.Metrics != nil {
					l.deps.Metrics.Add(metricTickOverruns, 1)
				}
				loggingsimulation.TickBudgetExceeded(context.Background(), l.deps.Publisher, tick, result.Duration, result.Budget)
			}
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) rejected(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	// First rejection and every power of two after it.
	if count == 0 || count&(count-1) != 0 {
		return
	}
	l.deps.Logger.Printf("[backpressure] dropping command actor=%s type=%s reason=%s count=%d", cmd.ActorID, cmd.Type, reason, count)
	loggingsimulation.CommandRejected(context.Background(), l.deps.Publisher, l.tick.Load(),
		logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindPlayer},
		loggingsimulation.CommandRejectedPayload{Command: string(cmd.Type), Reason: reason, Count: count})
}

// actorGate counts commands staged per actor between drains. Callers hold the
// loop mutex.
type actorGate struct {
	limit    int
	staged   map[string]int
	rejected map[string]uint64
}

func newActorGate(limit int) actorGate {
	return actorGate{limit: limit, staged: make(map[string]int), rejected: make(map[string]uint64)}
}

func (g *actorGate) admit(actor string) bool {
	if g.limit <= 0 || actor == "" {
		return true
	}
	if g.staged[actor] >= g.limit {
		return false
	}
	g.staged[actor]++
	return true
}

func (g *actorGate) release(actor string) {
	if n := g.staged[actor]; n > 0 {
		g.staged[actor] = n - 1
	}
}

func (g *actorGate) reject(actor string) uint64 {
	if actor == "" {
		return 0
	}
	g.rejected[actor]++
	return g.rejected[actor]
}

func (g *actorGate) reset() {
	if len(g.staged) > 0 {
		clear(g.staged)
	}
}

// pacer turns wall-clock gaps into simulation deltas capped at maxDt.
type pacer struct {
	budget time.Duration
	maxDt  float64
	last   time.Time
}

func newPacer(tickRate, catchup int, start time.Time) pacer {
	budget := time.Second / time.Duration(tickRate)
	return pacer{budget: budget, maxDt: budget.Seconds() * float64(max(catchup, 1)), last: start}
}

func (p *pacer) delta(now time.Time) float64 {
	dt := now.Sub(p.last).Seconds()
	p.last = now
	switch {
	case dt <= 0:
		return p.budget.Seconds()
	case dt > p.maxDt:
		return p.maxDt
	}
	return dt
}
