package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MurkesM/ARPG/internal/geom"
	"github.com/MurkesM/ARPG/internal/lifecycle"
	"github.com/MurkesM/ARPG/internal/sim"
	"github.com/MurkesM/ARPG/internal/spatial"
	loggingcombat "github.com/MurkesM/ARPG/logging/combat"
	loggingnetwork "github.com/MurkesM/ARPG/logging/network"
	"github.com/MurkesM/ARPG/logging/sinks"
)

const testDt = 1.0 / 30

func newAuthority(t *testing.T) (*AuthorityNode, *sinks.MemorySink) {
	t.Helper()
	scene := spatial.NewScene(nil, 0.5)
	events := sinks.NewMemorySink()
	node, err := NewAuthorityNode(DefaultNodeConfig("authority"), sim.Deps{
		Perception: spatial.NewField(10),
		Overlaps:   spatial.DefaultReach(),
		Visibility: scene,
		Blocker:    scene,
		Registry:   lifecycle.NewRegistry(nil),
		Publisher:  events,
	}, sim.LoopDeps{})
	require.NoError(t, err)
	scene.Track(node.World().Characters)
	return node, events
}

func newObserver(t *testing.T, uplink Uplink) (*ObserverNode, *sinks.MemorySink) {
	t.Helper()
	events := sinks.NewMemorySink()
	node, err := NewObserverNode(DefaultNodeConfig("observer"), uplink, sim.Deps{
		Registry:  lifecycle.NewRegistry(nil),
		Publisher: events,
	}, sim.LoopDeps{})
	require.NoError(t, err)
	return node, events
}

type recorder struct {
	envs []Envelope
}

func (r *recorder) Deliver(env Envelope) { r.envs = append(r.envs, env) }

func (r *recorder) applied(kind Kind) []Applied {
	var out []Applied
	for _, env := range r.envs {
		if env.Applied != nil && env.Applied.Kind == kind {
			out = append(out, *env.Applied)
		}
	}
	return out
}

func TestAuthorityBroadcastsEveryHealthChangeWithUniqueRequestID(t *testing.T) {
	authority, events := newAuthority(t)
	rec := &recorder{}
	authority.Attach("recorder", rec)
	authority.Enqueue(sim.Command{ActorID: "player-1", Type: sim.CommandJoin})
	authority.Enqueue(sim.Command{Type: sim.CommandSpawnEnemy})
	for i := 0; i < 120; i++ {
		authority.Step(testDt)
	}

	require.NotEmpty(t, rec.envs)
	assert.Equal(t, TypeSnapshot, rec.envs[0].Type)
	for i := 1; i < len(rec.envs); i++ {
		require.Equal(t, rec.envs[i-1].Seq+1, rec.envs[i].Seq, "broadcast sequence must be gapless")
	}

	changes := rec.applied(KindHealth)
	require.NotEmpty(t, changes, "enemy should have landed at least one hit")
	ids := make(map[string]struct{}, len(changes))
	for _, change := range changes {
		require.NotEmpty(t, change.RequestID)
		_, dup := ids[change.RequestID]
		require.False(t, dup, "request id %s reused", change.RequestID)
		ids[change.RequestID] = struct{}{}
	}

	logged := events.EventsOfType(loggingcombat.EventHealthChanged)
	require.Len(t, logged, len(changes))
	for _, event := range logged {
		assert.Contains(t, ids, event.RequestID)
	}

	player, ok := authority.World().Character("player-1")
	require.True(t, ok)
	assert.Equal(t, changes[len(changes)-1].Health, player.Health().CurrentHealth())
}

func TestAuthorityAppliesDuplicateRequestOnce(t *testing.T) {
	authority, events := newAuthority(t)
	rec := &recorder{}
	authority.Attach("recorder", rec)
	authority.Enqueue(sim.Command{ActorID: "player-1", Type: sim.CommandJoin})
	authority.Step(testDt)

	req := Request{ID: "req-1", Kind: KindHealth, EntityID: "player-1", Delta: -10}
	authority.Submit(req)
	authority.Submit(req)
	authority.Step(testDt)
	authority.Submit(req)
	authority.Step(testDt)

	player, ok := authority.World().Character("player-1")
	require.True(t, ok)
	assert.Equal(t, 90, player.Health().CurrentHealth())

	changes := rec.applied(KindHealth)
	require.Len(t, changes, 1)
	assert.Equal(t, "req-1", changes[0].RequestID)
	assert.Len(t, events.EventsOfType(loggingnetwork.EventMessageDropped), 2)
}

func TestAuthorityDropsRequestsForUnknownEntities(t *testing.T) {
	authority, events := newAuthority(t)
	authority.Submit(Request{ID: "req-1", Kind: KindHealth, EntityID: "ghost", Delta: -10})
	authority.Submit(Request{Kind: KindHealth, EntityID: "ghost", Delta: -10})
	authority.Step(testDt)

	dropped := events.EventsOfType(loggingnetwork.EventMessageDropped)
	require.Len(t, dropped, 2)
	reasons := []string{
		dropped[0].Payload.(loggingnetwork.DroppedPayload).Reason,
		dropped[1].Payload.(loggingnetwork.DroppedPayload).Reason,
	}
	assert.ElementsMatch(t, []string{dropMissingEntity, dropMissingID}, reasons)
}

func TestObserverMirrorsDuplicatedEnvelopesOnce(t *testing.T) {
	authority, _ := newAuthority(t)
	observer, events := newObserver(t, authority.Uplink())
	authority.Attach(observer.ID(), Duplicating(observer))

	authority.Enqueue(sim.Command{ActorID: "player-1", Type: sim.CommandJoin})
	authority.Step(testDt)
	observer.Step(testDt)
	require.True(t, observer.Synced())

	authority.Submit(Request{ID: "req-1", Kind: KindHealth, EntityID: "player-1", Delta: -10})
	authority.Step(testDt)
	observer.Step(testDt)

	mirrored, ok := observer.World().Character("player-1")
	require.True(t, ok)
	assert.Equal(t, 90, mirrored.Health().CurrentHealth())
	assert.Equal(t, authority.Seq(), observer.LastSeq())

	logged := events.EventsOfType(loggingcombat.EventHealthChanged)
	require.Len(t, logged, 1)
	assert.Equal(t, "req-1", logged[0].RequestID)
	assert.NotEmpty(t, events.EventsOfType(loggingnetwork.EventMessageDropped))
}

func TestObserverDropsAppliedBeforeSnapshot(t *testing.T) {
	observer, events := newObserver(t, nil)
	observer.Deliver(Envelope{Ver: ProtocolVersion, Type: TypeApplied, Seq: 1, Applied: &Applied{Kind: KindDespawn, EntityID: "x"}})
	observer.Deliver(Envelope{Ver: ProtocolVersion + 1, Type: TypeSnapshot, Snapshot: &Snapshot{}})
	observer.Step(testDt)

	assert.False(t, observer.Synced())
	assert.Len(t, events.EventsOfType(loggingnetwork.EventMessageDropped), 2)
}

func TestObserverRequestsConvergeWithAuthority(t *testing.T) {
	authority, _ := newAuthority(t)
	observer, _ := newObserver(t, DuplicatingUplink(authority.Uplink()))
	authority.Attach(observer.ID(), observer)

	authority.Enqueue(sim.Command{Type: sim.CommandSpawnEnemy, Spawn: &sim.SpawnCommand{X: 6, Y: 2}})
	observer.Enqueue(sim.Command{ActorID: "player-2", Type: sim.CommandJoin})
	step := func() {
		observer.Step(testDt)
		authority.Step(testDt)
	}
	step()
	_, ok := observer.World().Character("player-2")
	require.False(t, ok, "observer must wait for the authority")
	step()
	_, ok = observer.World().Character("player-2")
	require.True(t, ok)

	observer.Enqueue(sim.Command{ActorID: "player-2", Type: sim.CommandMove, Move: &sim.MoveCommand{X: 3, Y: -1}})
	for i := 0; i < 90; i++ {
		step()
	}
	observer.Step(testDt)

	assert.Equal(t, authority.World().States(), observer.World().States())
	player, ok := authority.World().Character("player-2")
	require.True(t, ok)
	assert.NotEqual(t, geom.Vec2{}, player.Position(), "authority should have moved the player")
}

func TestIDWindowEvictsOldest(t *testing.T) {
	window := newIDWindow(2)
	assert.True(t, window.add("a"))
	assert.True(t, window.add("b"))
	assert.False(t, window.add("a"))
	assert.True(t, window.add("c"))
	assert.True(t, window.add("a"), "evicted ids are accepted again")
}
