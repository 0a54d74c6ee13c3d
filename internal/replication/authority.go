package replication

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/health"
	"github.com/MurkesM/ARPG/internal/sim"
	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
	loggingnetwork "github.com/MurkesM/ARPG/logging/network"
)

const (
	metricApplied     = "replication_applied_total"
	metricRequests    = "replication_requests_total"
	metricDropped     = "replication_dropped_total"
	metricSubscribers = "replication_subscribers"

	// DefaultDedupCapacity bounds the remembered request ids.
	DefaultDedupCapacity = 8192

	dropDuplicate     = "duplicate"
	dropMissingID     = "missing_id"
	dropMissingEntity = "missing_entity"
	dropMalformed     = "malformed"
	dropUnknownKind   = "unknown_kind"
	dropStale         = "stale"
	dropUnsynced      = "unsynced"
	dropVersion       = "version"
	dropUnexpected    = "unexpected"
)

// NodeConfig tunes a replication node.
type NodeConfig struct {
	NodeID        string
	DedupCapacity int
	World         sim.WorldConfig
	Loop          sim.LoopConfig
}

// DefaultNodeConfig returns the default tuning for the given node id.
func DefaultNodeConfig(nodeID string) NodeConfig {
	return NodeConfig{
		NodeID:        nodeID,
		DedupCapacity: DefaultDedupCapacity,
		World:         sim.DefaultWorldConfig(),
		Loop:          sim.DefaultLoopConfig(),
	}
}

type controlKind int

const (
	controlAttach controlKind = iota
	controlDetach
)

type control struct {
	kind controlKind
	id   string
	sub  Subscriber
}

type subscriber struct {
	id  string
	sub Subscriber
}

// AuthorityNode owns the authoritative world. It decides every change,
// applies it locally and broadcasts the result to attached observers in a
// single sequence.
type AuthorityNode struct {
	cfg   NodeConfig
	world *sim.World
	loop  *sim.Loop

	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics

	tick        uint64
	seq         uint64
	current     string
	pending     string
	seen        *idWindow
	subscribers []subscriber

	requests inbox[Request]
	controls inbox[control]
}

// NewAuthorityNode builds the authoritative world and its tick loop. The
// authority and request hooks in deps are replaced by the node.
func NewAuthorityNode(cfg NodeConfig, deps sim.Deps, loopDeps sim.LoopDeps) (*AuthorityNode, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = "authority"
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = DefaultDedupCapacity
	}
	n := &AuthorityNode{
		cfg:       cfg,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		seen:      newIDWindow(cfg.DedupCapacity),
	}
	if n.publisher == nil {
		n.publisher = logging.NopPublisher()
	}
	if n.logger == nil {
		n.logger = telemetry.Nop()
	}
	deps.Authority = n
	deps.CurrentRequest = func() string { return n.current }
	cfg.World.Authoritative = true
	world, err := sim.NewWorld(cfg.World, deps)
	if err != nil {
		return nil, err
	}
	n.world = world
	n.loop = sim.NewLoop(world, cfg.Loop, sim.LoopHooks{
		Prepare:   n.prepare,
		AfterStep: n.afterStep,
		OnCommandDrop: func(reason string, cmd sim.Command) {
			n.logger.Printf("[authority] command dropped actor=%s type=%s reason=%s", cmd.ActorID, cmd.Type, reason)
		},
	}, loopDeps)
	return n, nil
}

// ID returns the node identifier.
func (n *AuthorityNode) ID() string { return n.cfg.NodeID }

// World exposes the authoritative world. It must only be touched from the
// tick goroutine.
func (n *AuthorityNode) World() *sim.World { return n.world }

// Loop exposes the tick loop.
func (n *AuthorityNode) Loop() *sim.Loop { return n.loop }

// Seq returns the sequence number of the last broadcast.
func (n *AuthorityNode) Seq() uint64 { return n.seq }

// Enqueue stages a local command for the next tick. Safe for concurrent use.
func (n *AuthorityNode) Enqueue(cmd sim.Command) (bool, string) {
	return n.loop.Enqueue(cmd)
}

// Submit queues an observer request for the next tick. Safe for concurrent
// use.
func (n *AuthorityNode) Submit(req Request) {
	n.requests.push(req)
}

// Attach subscribes an observer. On the next tick it receives a full snapshot
// followed by every later broadcast. Safe for concurrent use.
func (n *AuthorityNode) Attach(id string, sub Subscriber) {
	n.controls.push(control{kind: controlAttach, id: id, sub: sub})
}

// Detach unsubscribes an observer on the next tick. Safe for concurrent use.
func (n *AuthorityNode) Detach(id string) {
	n.controls.push(control{kind: controlDetach, id: id})
}

// Step advances one tick of dt seconds outside Run.
func (n *AuthorityNode) Step(dt float64) sim.LoopStepResult {
	result := n.loop.Advance(sim.LoopTickContext{Tick: n.tick + 1, Now: time.Now(), Delta: dt})
	n.afterStep(result)
	return result
}

// Run drives the tick loop until stop closes.
func (n *AuthorityNode) Run(stop <-chan struct{}) {
	n.loop.Run(stop)
}

func (n *AuthorityNode) prepare(ctx sim.LoopTickContext) {
	n.tick = ctx.Tick
	for _, c := range n.controls.drain() {
		switch c.kind {
		case controlAttach:
			n.attach(c.id, c.sub)
		case controlDetach:
			n.detach(c.id, "detached")
		}
	}
	for _, req := range n.requests.drain() {
		n.handle(req)
	}
}

func (n *AuthorityNode) afterStep(result sim.LoopStepResult) {
	for _, id := range result.Moved {
		c, ok := n.world.Character(id)
		if !ok {
			continue
		}
		pos := c.Position()
		n.broadcast(Applied{Kind: KindMove, EntityID: id, Position: &pos, Facing: c.Facing()})
	}
}

func (n *AuthorityNode) attach(id string, sub Subscriber) {
	if sub == nil {
		return
	}
	n.detach(id, "replaced")
	sub.Deliver(Envelope{
		Ver:      ProtocolVersion,
		Type:     TypeSnapshot,
		Seq:      n.seq,
		Snapshot: &Snapshot{Tick: n.world.Tick(), Characters: n.world.States()},
	})
	n.subscribers = append(n.subscribers, subscriber{id: id, sub: sub})
	n.storeSubscribers()
	loggingnetwork.ObserverConnected(context.Background(), n.publisher, n.world.Tick(), id)
}

func (n *AuthorityNode) detach(id, reason string) {
	for i, s := range n.subscribers {
		if s.id != id {
			continue
		}
		n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
		n.storeSubscribers()
		loggingnetwork.ObserverDisconnected(context.Background(), n.publisher, n.world.Tick(), id, reason)
		return
	}
}

func (n *AuthorityNode) storeSubscribers() {
	if n.metrics != nil {
		n.metrics.Store(metricSubscribers, uint64(len(n.subscribers)))
	}
}

func (n *AuthorityNode) broadcast(a Applied) {
	n.seq++
	a.Tick = n.world.Tick()
	env := Envelope{Ver: ProtocolVersion, Type: TypeApplied, Seq: n.seq, Applied: &a}
	for _, s := range n.subscribers {
		s.sub.Deliver(env)
	}
	if n.metrics != nil {
		n.metrics.Add(metricApplied, 1)
	}
}

func (n *AuthorityNode) drop(kind Kind, entityID, reason string) {
	if n.metrics != nil {
		n.metrics.Add(metricDropped, 1)
	}
	loggingnetwork.MessageDropped(context.Background(), n.publisher, n.world.Tick(), n.cfg.NodeID,
		loggingnetwork.DroppedPayload{Kind: string(kind), EntityID: entityID, Reason: reason})
}

// scoped runs fn under a fresh request id. The id of the observer request
// being handled is used by the first change it causes; every other change is
// minted its own.
func (n *AuthorityNode) scoped(fn func(id string)) {
	id := n.pending
	n.pending = ""
	if id == "" {
		id = ulid.Make().String()
	}
	prev := n.current
	n.current = id
	defer func() { n.current = prev }()
	fn(id)
}

func (n *AuthorityNode) handle(req Request) {
	if n.metrics != nil {
		n.metrics.Add(metricRequests, 1)
	}
	if req.ID == "" {
		n.drop(req.Kind, req.EntityID, dropMissingID)
		return
	}
	if !n.seen.add(req.ID) {
		n.drop(req.Kind, req.EntityID, dropDuplicate)
		return
	}
	n.pending = req.ID
	defer func() { n.pending = "" }()

	switch req.Kind {
	case KindSpawn:
		spec := sim.SpawnSpec{ID: req.EntityID, Faction: req.Faction, Facing: req.Facing}
		if spec.ID == "" {
			spec.ID = sim.NewEntityID(string(req.Faction))
		}
		if req.Position != nil {
			spec.Position = *req.Position
		}
		n.AuthorizeSpawn(spec)
		return
	case KindHealth, KindAttackStart, KindAttackEnd, KindMove, KindDespawn:
	default:
		n.drop(req.Kind, req.EntityID, dropUnknownKind)
		return
	}

	c, ok := n.world.Character(req.EntityID)
	if !ok {
		n.drop(req.Kind, req.EntityID, dropMissingEntity)
		return
	}
	switch req.Kind {
	case KindHealth:
		n.AuthorizeHealthChange(c.Health(), req.Delta)
	case KindAttackStart:
		if c.IsAlive() {
			n.AuthorizeAttackStart(c.Combat(), req.AttackKind)
		}
	case KindAttackEnd:
		n.AuthorizeAttackEnd(c.Combat())
	case KindMove:
		if req.Destination == nil {
			n.drop(req.Kind, req.EntityID, dropMalformed)
			return
		}
		n.AuthorizeMove(c, *req.Destination)
	case KindDespawn:
		n.AuthorizeDespawn(req.EntityID)
	}
}

// AuthorizeHealthChange applies delta and broadcasts the result.
func (n *AuthorityNode) AuthorizeHealthChange(l *health.Ledger, delta int) {
	n.scoped(func(id string) {
		// The broadcast precedes the apply so anything the apply triggers is
		// sequenced after it.
		if !l.IsAlive() {
			return
		}
		n.broadcast(Applied{
			RequestID: id,
			Kind:      KindHealth,
			EntityID:  l.EntityID(),
			Delta:     delta,
			Health:    l.CurrentHealth() + delta,
		})
		l.ApplyHealthChange(delta)
	})
}

// AuthorizeAttackStart opens the window and broadcasts it.
func (n *AuthorityNode) AuthorizeAttackStart(s *combat.Session, kind combat.Kind) {
	if kind == "" {
		kind = combat.KindPrimary
	}
	n.scoped(func(id string) {
		if s.IsAttacking() {
			return
		}
		n.broadcast(Applied{RequestID: id, Kind: KindAttackStart, EntityID: s.OwnerID(), AttackKind: kind})
		s.ApplyAttackStart(kind)
	})
}

// AuthorizeAttackEnd closes the window and broadcasts it.
func (n *AuthorityNode) AuthorizeAttackEnd(s *combat.Session) {
	n.scoped(func(id string) {
		if !s.IsAttacking() {
			return
		}
		n.broadcast(Applied{RequestID: id, Kind: KindAttackEnd, EntityID: s.OwnerID(), AttackKind: s.CurrentKind()})
		s.ApplyAttackEnd()
	})
}

// AuthorizeMove starts movement. Poses replicate through per-tick move
// broadcasts.
func (n *AuthorityNode) AuthorizeMove(c *character.Character, destination geom.Vec2) {
	c.MoveTo(destination, n.world.Tick())
}

// AuthorizeSpawn creates the character and broadcasts its state.
func (n *AuthorityNode) AuthorizeSpawn(spec sim.SpawnSpec) {
	n.scoped(func(id string) {
		c, err := n.world.Spawn(spec)
		if err != nil {
			n.logger.Printf("[authority] spawn %s rejected: %v", spec.ID, err)
			n.drop(KindSpawn, spec.ID, dropMalformed)
			return
		}
		state := c.State()
		n.broadcast(Applied{RequestID: id, Kind: KindSpawn, EntityID: state.ID, State: &state})
	})
}

// AuthorizeDespawn removes the character and broadcasts the removal.
func (n *AuthorityNode) AuthorizeDespawn(entityID string) {
	n.scoped(func(id string) {
		if n.world.Remove(entityID) {
			n.broadcast(Applied{RequestID: id, Kind: KindDespawn, EntityID: entityID})
		}
	})
}
