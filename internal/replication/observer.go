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

// ObserverNode mirrors the authority. Local changes are forwarded as
// requests; state only changes when the applied result comes back.
type ObserverNode struct {
	cfg    NodeConfig
	world  *sim.World
	loop   *sim.Loop
	uplink Uplink

	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics

	tick    uint64
	lastSeq uint64
	synced  bool
	current string

	inbound inbox[Envelope]
}

// NewObserverNode builds a mirroring world that forwards requests through
// uplink.
func NewObserverNode(cfg NodeConfig, uplink Uplink, deps sim.Deps, loopDeps sim.LoopDeps) (*ObserverNode, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = "observer"
	}
	n := &ObserverNode{
		cfg:       cfg,
		uplink:    uplink,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
	if n.publisher == nil {
		n.publisher = logging.NopPublisher()
	}
	if n.logger == nil {
		n.logger = telemetry.Nop()
	}
	deps.Authority = n
	deps.CurrentRequest = func() string { return n.current }
	cfg.World.Authoritative = false
	world, err := sim.NewWorld(cfg.World, deps)
	if err != nil {
		return nil, err
	}
	n.world = world
	n.loop = sim.NewLoop(world, cfg.Loop, sim.LoopHooks{Prepare: n.prepare}, loopDeps)
	return n, nil
}

// ID returns the node identifier.
func (n *ObserverNode) ID() string { return n.cfg.NodeID }

// World exposes the mirrored world. It must only be touched from the tick
// goroutine.
func (n *ObserverNode) World() *sim.World { return n.world }

// Synced reports whether a snapshot has been received.
func (n *ObserverNode) Synced() bool { return n.synced }

// LastSeq returns the sequence number of the last mirrored message.
func (n *ObserverNode) LastSeq() uint64 { return n.lastSeq }

// Enqueue stages a local command for the next tick. Safe for concurrent use.
func (n *ObserverNode) Enqueue(cmd sim.Command) (bool, string) {
	return n.loop.Enqueue(cmd)
}

// Deliver queues an envelope from the authority for the next tick. Safe for
// concurrent use.
func (n *ObserverNode) Deliver(env Envelope) {
	n.inbound.push(env)
}

// Step advances one tick of dt seconds outside Run.
func (n *ObserverNode) Step(dt float64) sim.LoopStepResult {
	return n.loop.Advance(sim.LoopTickContext{Tick: n.tick + 1, Now: time.Now(), Delta: dt})
}

// Run drives the tick loop until stop closes.
func (n *ObserverNode) Run(stop <-chan struct{}) {
	n.loop.Run(stop)
}

func (n *ObserverNode) prepare(ctx sim.LoopTickContext) {
	n.tick = ctx.Tick
	for _, env := range n.inbound.drain() {
		n.receive(env)
	}
}

func (n *ObserverNode) receive(env Envelope) {
	if env.Ver != ProtocolVersion {
		n.drop(env, "", dropVersion)
		return
	}
	switch env.Type {
	case TypeSnapshot:
		if env.Snapshot == nil {
			n.drop(env, "", dropMalformed)
			return
		}
		if n.synced && env.Seq < n.lastSeq {
			n.drop(env, "", dropStale)
			return
		}
		n.world.Reconcile(env.Snapshot.Characters)
		n.lastSeq = env.Seq
		n.synced = true
	case TypeApplied:
		if env.Applied == nil {
			n.drop(env, "", dropMalformed)
			return
		}
		if !n.synced {
			n.drop(env, env.Applied.EntityID, dropUnsynced)
			return
		}
		if env.Seq <= n.lastSeq {
			n.drop(env, env.Applied.EntityID, dropStale)
			return
		}
		n.lastSeq = env.Seq
		n.mirror(env, *env.Applied)
	default:
		n.drop(env, "", dropUnexpected)
	}
}

func (n *ObserverNode) mirror(env Envelope, a Applied) {
	n.current = a.RequestID
	defer func() { n.current = "" }()

	if a.Kind == KindSpawn {
		if a.State == nil {
			n.drop(env, a.EntityID, dropMalformed)
			return
		}
		if _, err := n.world.Restore(*a.State); err != nil {
			n.logger.Printf("[observer] restore %s failed: %v", a.EntityID, err)
		}
		return
	}
	c, ok := n.world.Character(a.EntityID)
	if !ok {
		n.drop(env, a.EntityID, dropMissingEntity)
		return
	}
	switch a.Kind {
	case KindHealth:
		c.Health().ApplyHealthChange(a.Delta)
		if got := c.Health().CurrentHealth(); got != a.Health {
			n.logger.Printf("[observer] health drift entity=%s local=%d authority=%d", a.EntityID, got, a.Health)
		}
	case KindAttackStart:
		c.Combat().ApplyAttackStart(a.AttackKind)
	case KindAttackEnd:
		c.Combat().ApplyAttackEnd()
	case KindMove:
		if a.Position == nil {
			n.drop(env, a.EntityID, dropMalformed)
			return
		}
		c.SetPose(*a.Position, a.Facing)
	case KindDespawn:
		n.world.Remove(a.EntityID)
	default:
		n.drop(env, a.EntityID, dropUnknownKind)
	}
}

func (n *ObserverNode) drop(env Envelope, entityID, reason string) {
	if n.metrics != nil {
		n.metrics.Add(metricDropped, 1)
	}
	kind := string(env.Type)
	if env.Applied != nil {
		kind = string(env.Applied.Kind)
	}
	loggingnetwork.MessageDropped(context.Background(), n.publisher, n.world.Tick(), n.cfg.NodeID,
		loggingnetwork.DroppedPayload{Kind: kind, EntityID: entityID, Reason: reason, Seq: env.Seq})
}

func (n *ObserverNode) send(req Request) {
	req.ID = ulid.Make().String()
	if n.uplink == nil {
		return
	}
	if err := n.uplink.SendRequest(req); err != nil {
		n.logger.Printf("[observer] request %s kind=%s failed: %v", req.ID, req.Kind, err)
		return
	}
	if n.metrics != nil {
		n.metrics.Add(metricRequests, 1)
	}
}

// AuthorizeHealthChange forwards the delta to the authority.
func (n *ObserverNode) AuthorizeHealthChange(l *health.Ledger, delta int) {
	n.send(Request{Kind: KindHealth, EntityID: l.EntityID(), Delta: delta})
}

// AuthorizeAttackStart forwards the attack to the authority.
func (n *ObserverNode) AuthorizeAttackStart(s *combat.Session, kind combat.Kind) {
	n.send(Request{Kind: KindAttackStart, EntityID: s.OwnerID(), AttackKind: kind})
}

// AuthorizeAttackEnd forwards the close to the authority.
func (n *ObserverNode) AuthorizeAttackEnd(s *combat.Session) {
	n.send(Request{Kind: KindAttackEnd, EntityID: s.OwnerID()})
}

// AuthorizeMove forwards the destination to the authority.
func (n *ObserverNode) AuthorizeMove(c *character.Character, destination geom.Vec2) {
	n.send(Request{Kind: KindMove, EntityID: c.EntityID(), Destination: &destination})
}

// AuthorizeSpawn forwards the spawn to the authority.
func (n *ObserverNode) AuthorizeSpawn(spec sim.SpawnSpec) {
	pos := spec.Position
	n.send(Request{Kind: KindSpawn, EntityID: spec.ID, Faction: spec.Faction, Position: &pos, Facing: spec.Facing})
}

// AuthorizeDespawn forwards the removal to the authority.
func (n *ObserverNode) AuthorizeDespawn(id string) {
	n.send(Request{Kind: KindDespawn, EntityID: id})
}
