package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/oklog/ulid/v2"

	"github.com/MurkesM/ARPG/internal/ai"
	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/internal/lifecycle"
	"github.com/MurkesM/ARPG/internal/perception"
	"github.com/MurkesM/ARPG/internal/presentation"
	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
	loggingsimulation "github.com/MurkesM/ARPG/logging/simulation"
)

var (
	// ErrMissingAuthority is returned when a world is built without an
	// authority.
	ErrMissingAuthority = errors.New("sim: authority is required")
	// ErrMissingCollaborator is returned when an authoritative world lacks a
	// spatial service.
	ErrMissingCollaborator = errors.New("sim: spatial collaborator is required")
	// ErrDuplicateEntity is returned when spawning an id that already exists.
	ErrDuplicateEntity = errors.New("sim: entity already exists")
)

const (
	metricCharacters      = "sim_characters"
	metricCommandsIgnored = "sim_commands_ignored_total"
	metricHitsRegistered  = "sim_hits_registered_total"
)

// Authority decides every world-level change. The authoritative node applies
// them and broadcasts the result; observers forward them as requests.
type Authority interface {
	health.Authority
	combat.Authority
	AuthorizeMove(c *character.Character, destination geom.Vec2)
	AuthorizeSpawn(spec SpawnSpec)
	AuthorizeDespawn(id string)
}

// SpawnSpec describes a character to create.
type SpawnSpec struct {
	ID       string         `json:"id"`
	Faction  combat.Faction `json:"faction"`
	Position geom.Vec2      `json:"position"`
	Facing   float64        `json:"facing"`
}

// PerceptionSource reports enter and exit edges between characters.
type PerceptionSource interface {
	Sense(chars []*character.Character) []perception.Report
}

// OverlapSource reports melee overlap candidates for an attacker.
type OverlapSource interface {
	Overlaps(attacker *character.Character, chars []*character.Character) []*character.Character
}

// Blocker reports positions a character may not occupy.
type Blocker interface {
	Blocked(pos geom.Vec2) bool
}

// WorldConfig carries tuning for spawned characters.
type WorldConfig struct {
	Authoritative   bool
	PlayerMaxHealth int
	EnemyMaxHealth  int
	PlayerCombat    combat.Config
	EnemyCombat     combat.Config
	PlayerMovement  character.MovementConfig
	EnemyMovement   character.MovementConfig
	AI              ai.Config
	PlayerSpawn     geom.Vec2
	EnemySpawn      geom.Vec2
}

// DefaultWorldConfig returns the prototype tuning.
func DefaultWorldConfig() WorldConfig {
	playerCombat := combat.DefaultConfig()
	playerCombat.Damage = 25
	playerCombat.AllowedTargets = combat.AllowEnemy
	enemyCombat := combat.DefaultConfig()
	enemyMovement := character.DefaultMovementConfig()
	enemyMovement.MoveSpeed = 3
	return WorldConfig{
		Authoritative:   true,
		PlayerMaxHealth: 100,
		EnemyMaxHealth:  50,
		PlayerCombat:    playerCombat,
		EnemyCombat:     enemyCombat,
		PlayerMovement:  character.DefaultMovementConfig(),
		EnemyMovement:   enemyMovement,
		AI:              ai.DefaultConfig(),
		PlayerSpawn:     geom.Vec2{X: 0, Y: 0},
		EnemySpawn:      geom.Vec2{X: 8, Y: 0},
	}
}

// Deps bundles the collaborators of a world.
type Deps struct {
	Authority  Authority
	Perception PerceptionSource
	Overlaps   OverlapSource
	Visibility perception.VisibilityQuery
	Blocker    Blocker
	Registry   *lifecycle.Registry
	Bridge     presentation.Bridge
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	// CurrentRequest returns the replication request being applied.
	CurrentRequest func() string
}

// StepResult summarises one tick.
type StepResult struct {
	Tick    uint64
	Moved   []string
	Removed []string
}

// World owns every character simulated by one node. It is mutated only by
// that node's tick goroutine.
type World struct {
	cfg  WorldConfig
	deps Deps

	characters map[string]*character.Character
	order      []string
	brains     map[string]*ai.Brain
	tick       uint64
}

// NewWorld validates collaborators and builds an empty world.
func NewWorld(cfg WorldConfig, deps Deps) (*World, error) {
	if deps.Authority == nil {
		return nil, ErrMissingAuthority
	}
	if cfg.Authoritative {
		switch {
		case deps.Perception == nil:
			return nil, fmt.Errorf("perception source: %w", ErrMissingCollaborator)
		case deps.Overlaps == nil:
			return nil, fmt.Errorf("overlap source: %w", ErrMissingCollaborator)
		case deps.Visibility == nil:
			return nil, fmt.Errorf("visibility query: %w", ErrMissingCollaborator)
		}
	}
	if deps.Registry == nil {
		deps.Registry = lifecycle.NewRegistry(nil)
	}
	if deps.Bridge == nil {
		deps.Bridge = presentation.Nop
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.Nop()
	}
	return &World{
		cfg:        cfg,
		deps:       deps,
		characters: make(map[string]*character.Character),
		brains:     make(map[string]*ai.Brain),
	}, nil
}

// Config returns the world tuning.
func (w *World) Config() WorldConfig { return w.cfg }

// Authoritative reports whether this world decides changes itself.
func (w *World) Authoritative() bool { return w.cfg.Authoritative }

// Tick returns the last simulated tick.
func (w *World) Tick() uint64 { return w.tick }

// Character looks up a live character.
func (w *World) Character(id string) (*character.Character, bool) {
	c, ok := w.characters[id]
	return c, ok
}

// Brain looks up the decision loop of an enemy.
func (w *World) Brain(id string) (*ai.Brain, bool) {
	b, ok := w.brains[id]
	return b, ok
}

// Characters returns live characters in spawn order.
func (w *World) Characters() []*character.Character {
	out := make([]*character.Character, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.characters[id])
	}
	return out
}

// States captures the replicated view of every character.
func (w *World) States() []character.State {
	out := make([]character.State, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.characters[id].State())
	}
	return out
}

// Lookup resolves an entity reference for telemetry.
func (w *World) Lookup(id string) logging.EntityRef {
	c, ok := w.characters[id]
	if !ok {
		return logging.EntityRef{ID: id, Kind: logging.EntityKindUnknown}
	}
	return logging.EntityRef{ID: id, Kind: entityKind(c.Faction())}
}

func entityKind(f combat.Faction) logging.EntityKind {
	switch f {
	case combat.FactionPlayer:
		return logging.EntityKindPlayer
	case combat.FactionEnemy:
		return logging.EntityKindEnemy
	default:
		return logging.EntityKindUnknown
	}
}

// NewEntityID returns a fresh identifier with the given prefix.
func NewEntityID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

func (w *World) characterConfig(faction combat.Faction) character.Config {
	cfg := character.Config{
		Faction:         faction,
		HealthAuthority: w.deps.Authority,
		CombatAuthority: w.deps.Authority,
	}
	switch faction {
	case combat.FactionEnemy:
		cfg.MaxHealth = w.cfg.EnemyMaxHealth
		cfg.Combat = w.cfg.EnemyCombat
		cfg.Movement = w.cfg.EnemyMovement
	default:
		cfg.MaxHealth = w.cfg.PlayerMaxHealth
		cfg.Combat = w.cfg.PlayerCombat
		cfg.Movement = w.cfg.PlayerMovement
	}
	return cfg
}

// Spawn creates a character at full health.
func (w *World) Spawn(spec SpawnSpec) (*character.Character, error) {
	if _, exists := w.characters[spec.ID]; exists {
		return nil, fmt.Errorf("spawn %q: %w", spec.ID, ErrDuplicateEntity)
	}
	cfg := w.characterConfig(spec.Faction)
	cfg.ID = spec.ID
	cfg.Position = spec.Position
	cfg.Facing = spec.Facing
	c, err := character.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, w.register(c)
}

// Restore adds a character from replicated state.
func (w *World) Restore(state character.State) (*character.Character, error) {
	if _, exists := w.characters[state.ID]; exists {
		return nil, fmt.Errorf("restore %q: %w", state.ID, ErrDuplicateEntity)
	}
	c, err := character.FromState(state, w.characterConfig(state.Faction))
	if err != nil {
		return nil, err
	}
	return c, w.register(c)
}

func (w *World) register(c *character.Character) error {
	id := c.EntityID()
	if w.cfg.Authoritative && c.Faction() == combat.FactionEnemy {
		brain, err := ai.NewBrain(c, nil, w.deps.Visibility, w.cfg.AI)
		if err != nil {
			c.Close()
			return err
		}
		brain.SetLogger(w.deps.Logger)
		brain.OnTransition(func(tr ai.Transition) {
			loggingsimulation.AIStateChanged(context.Background(), w.deps.Publisher, tr.Tick, w.Lookup(tr.EntityID),
				loggingsimulation.StatePayload{From: tr.From, To: tr.To, Target: tr.TargetID})
		})
		w.brains[id] = brain
	}

	recorder := combat.TelemetryRecorderConfig{
		Publisher:      w.deps.Publisher,
		LookupEntity:   w.Lookup,
		CurrentTick:    w.Tick,
		CurrentRequest: w.deps.CurrentRequest,
	}
	combat.AttachTelemetry(c.Combat(), recorder)
	combat.AttachHealthTelemetry(c.Health(), recorder)
	presentation.Attach(w.deps.Bridge, c, w.Tick)

	w.characters[id] = c
	w.order = append(w.order, id)
	w.deps.Registry.Spawn(c)
	w.storeCount()
	return nil
}

// Remove destroys a character and tears down everything it owns.
func (w *World) Remove(id string) bool {
	c, ok := w.characters[id]
	if !ok {
		return false
	}
	delete(w.characters, id)
	for i, existing := range w.order {
		if existing == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	if brain, ok := w.brains[id]; ok {
		brain.Close()
		delete(w.brains, id)
	}
	w.deps.Registry.Destroy(id)
	c.Close()
	w.storeCount()
	return true
}

func (w *World) storeCount() {
	if w.deps.Metrics != nil {
		w.deps.Metrics.Store(metricCharacters, uint64(len(w.characters)))
	}
}

// Apply executes staged commands through the authority.
func (w *World) Apply(cmds []Command) error {
	for _, cmd := range cmds {
		if !w.apply(cmd) {
			if w.deps.Metrics != nil {
				w.deps.Metrics.Add(metricCommandsIgnored, 1)
			}
		}
	}
	return nil
}

func (w *World) apply(cmd Command) bool {
	switch cmd.Type {
	case CommandJoin:
		if cmd.ActorID == "" {
			return false
		}
		if _, exists := w.characters[cmd.ActorID]; exists {
			return false
		}
		w.deps.Authority.AuthorizeSpawn(SpawnSpec{ID: cmd.ActorID, Faction: combat.FactionPlayer, Position: w.cfg.PlayerSpawn})
		return true
	case CommandSpawnEnemy:
		spec := SpawnSpec{ID: NewEntityID("npc"), Faction: combat.FactionEnemy, Position: w.cfg.EnemySpawn, Facing: math.Pi}
		if cmd.Spawn != nil {
			spec.Position = geom.Vec2{X: cmd.Spawn.X, Y: cmd.Spawn.Y}
		}
		w.deps.Authority.AuthorizeSpawn(spec)
		return true
	case CommandLeave:
		if _, ok := w.characters[cmd.ActorID]; !ok {
			return false
		}
		w.deps.Authority.AuthorizeDespawn(cmd.ActorID)
		return true
	}

	c, ok := w.characters[cmd.ActorID]
	if !ok || !c.IsAlive() {
		return false
	}
	switch cmd.Type {
	case CommandMove:
		if cmd.Move == nil {
			return false
		}
		w.deps.Authority.AuthorizeMove(c, geom.Vec2{X: cmd.Move.X, Y: cmd.Move.Y})
	case CommandAttack:
		c.Combat().PrimaryAttack()
	case CommandHeal:
		if cmd.Heal == nil || cmd.Heal.Amount <= 0 {
			return false
		}
		c.TryApplyHealthChange(cmd.Heal.Amount)
	default:
		w.deps.Logger.Printf("[sim] unknown command type=%s actor=%s", cmd.Type, cmd.ActorID)
		return false
	}
	return true
}

type pose struct {
	position geom.Vec2
	facing   float64
}

// Step advances the world by one tick of dt seconds. Observers only record
// the tick; their state changes arrive as replicated results.
func (w *World) Step(tick uint64, dt float64) StepResult {
	w.tick = tick
	result := StepResult{Tick: tick}
	if !w.cfg.Authoritative {
		return result
	}

	chars := w.Characters()
	before := make(map[string]pose, len(chars))
	for _, c := range chars {
		before[c.EntityID()] = pose{position: c.Position(), facing: c.Facing()}
	}

	for _, report := range w.deps.Perception.Sense(chars) {
		if brain, ok := w.brains[report.ViewerID]; ok {
			brain.Perception().Apply(report)
		}
	}

	for _, id := range w.order {
		if brain, ok := w.brains[id]; ok {
			brain.Tick(tick, dt)
		}
	}

	for _, c := range chars {
		prev := c.Position()
		if c.Step(dt) && w.deps.Blocker != nil && w.deps.Blocker.Blocked(c.Position()) {
			c.SetPose(prev, c.Facing())
			c.Halt()
		}
	}

	for _, c := range chars {
		if !c.Combat().IsAttacking() || !c.IsAlive() {
			continue
		}
		for _, target := range w.deps.Overlaps.Overlaps(c, chars) {
			if c.Combat().RegisterHit(target) && w.deps.Metrics != nil {
				w.deps.Metrics.Add(metricHitsRegistered, 1)
			}
		}
	}

	for _, c := range chars {
		c.AdvanceAttackWindow()
	}

	for _, c := range chars {
		if _, alive := w.characters[c.EntityID()]; !alive {
			continue
		}
		prev := before[c.EntityID()]
		if prev.position != c.Position() || prev.facing != c.Facing() {
			result.Moved = append(result.Moved, c.EntityID())
		}
	}

	for _, id := range append([]string(nil), w.order...) {
		if brain, ok := w.brains[id]; ok && brain.RemovalDue(tick) {
			w.deps.Authority.AuthorizeDespawn(id)
			if _, still := w.characters[id]; !still {
				result.Removed = append(result.Removed, id)
			}
		}
	}
	return result
}

// Reconcile aligns the world with a full snapshot: unknown characters are
// restored, missing ones removed and the rest brought to the snapshot values.
func (w *World) Reconcile(states []character.State) {
	keep := make(map[string]struct{}, len(states))
	for _, state := range states {
		keep[state.ID] = struct{}{}
		c, ok := w.characters[state.ID]
		if !ok {
			if _, err := w.Restore(state); err != nil {
				w.deps.Logger.Printf("[sim] restore %s failed: %v", state.ID, err)
			}
			continue
		}
		c.SetPose(state.Position, state.Facing)
		if delta := state.Health - c.Health().CurrentHealth(); delta != 0 {
			c.Health().ApplyHealthChange(delta)
		}
		switch {
		case state.Attacking && !c.Combat().IsAttacking():
			c.Combat().ApplyAttackStart(state.AttackKind)
		case !state.Attacking && c.Combat().IsAttacking():
			c.Combat().ApplyAttackEnd()
		}
	}
	for _, id := range append([]string(nil), w.order...) {
		if _, ok := keep[id]; !ok {
			w.Remove(id)
		}
	}
}
