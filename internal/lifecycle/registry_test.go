package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MurkesM/ARPG/internal/health"
)

type entity string

func (e entity) EntityID() string { return string(e) }

type countingHandle struct{ releases *atomic.Int64 }

func (h countingHandle) Release() { h.releases.Add(1) }

func TestRegistryIgnoresDuplicateSpawn(t *testing.T) {
	created := 0
	registry := NewRegistry(HandleFactoryFunc(func(Entity) Handle {
		created++
		return nopHandle{}
	}))
	spawned := 0
	registry.OnSpawned(func(Spawned) { spawned++ })

	if !registry.Spawn(entity("npc-1")) {
		t.Fatalf("expected first spawn to register")
	}
	if registry.Spawn(entity("npc-1")) {
		t.Fatalf("expected duplicate spawn to be ignored")
	}
	if created != 1 || spawned != 1 {
		t.Fatalf("expected one handle and one notification, got %d and %d", created, spawned)
	}
}

func TestRegistryDestroyBeforeSpawn(t *testing.T) {
	registry := NewRegistry(nil)
	if registry.Destroy("npc-1") {
		t.Fatalf("expected destroy of unknown entity to report false")
	}
	if registry.Spawn(entity("npc-1")) {
		t.Fatalf("expected late spawn after destroy to be ignored")
	}
	if registry.Len() != 0 {
		t.Fatalf("expected no registrations, got %d", registry.Len())
	}
}

func TestRegistryTombstonesAreBounded(t *testing.T) {
	registry := NewRegistry(nil)
	for i := 0; i < DefaultTombstoneCapacity+10; i++ {
		id := fmt.Sprintf("npc-%d", i)
		registry.Spawn(entity(id))
		registry.Destroy(id)
	}
	if got := registry.tombstones.len(); got != DefaultTombstoneCapacity {
		t.Fatalf("expected %d tombstones, got %d", DefaultTombstoneCapacity, got)
	}
	if registry.Spawn(entity(fmt.Sprintf("npc-%d", DefaultTombstoneCapacity+9))) {
		t.Fatalf("expected a recent tombstone to block its late spawn")
	}
	if !registry.Spawn(entity("npc-0")) {
		t.Fatalf("expected the oldest tombstone to have been evicted")
	}
}

func TestRegistryConcurrentSpawnDestroyReleasesOnce(t *testing.T) {
	var releases atomic.Int64
	registry := NewRegistry(HandleFactoryFunc(func(Entity) Handle {
		return countingHandle{releases: &releases}
	}))
	var spawned, destroyed atomic.Int64
	registry.OnSpawned(func(Spawned) { spawned.Add(1) })
	registry.OnDestroyed(func(Destroyed) { destroyed.Add(1) })

	const entities = 50
	const nodes = 4
	var wg sync.WaitGroup
	for n := 0; n < nodes; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < entities; i++ {
				id := fmt.Sprintf("npc-%d", i)
				registry.Spawn(entity(id))
				registry.Destroy(id)
			}
		}()
	}
	wg.Wait()

	if registry.Len() != 0 {
		t.Fatalf("expected every entity to be released, %d left", registry.Len())
	}
	if got := releases.Load(); got != spawned.Load() || got != destroyed.Load() {
		t.Fatalf("releases %d must match spawns %d and destroys %d", got, spawned.Load(), destroyed.Load())
	}
	if got := spawned.Load(); got > entities {
		t.Fatalf("expected at most one registration per entity, got %d", got)
	}
}

func TestStatusIndicatorTracksHealthUntilReleased(t *testing.T) {
	ledger, err := health.NewLedger("p1", 100, health.Standalone)
	if err != nil {
		t.Fatalf("unexpected ledger error: %v", err)
	}
	var updates []Status
	registry := NewRegistry(StatusIndicators(func(s Status) { updates = append(updates, s) }))
	registry.Spawn(ledgerEntity{ledger: ledger})

	ledger.TryApplyHealthChange(-30)

	handle, ok := registry.Handle("p1")
	if !ok {
		t.Fatalf("expected handle to be registered")
	}
	indicator := handle.(*StatusIndicator)
	if got := indicator.Status(); got.Current != 70 || got.Max != 100 || !got.Alive {
		t.Fatalf("unexpected indicator status: %+v", got)
	}

	registry.Destroy("p1")
	ledger.TryApplyHealthChange(-10)
	ledger.TryApplyHealthChange(-10)

	if len(updates) != 1 {
		t.Fatalf("expected released indicator to stop updating, got %d updates", len(updates))
	}
	if !indicator.Released() {
		t.Fatalf("expected indicator to be released")
	}
}

type ledgerEntity struct{ ledger *health.Ledger }

func (e ledgerEntity) EntityID() string        { return e.ledger.EntityID() }
func (e ledgerEntity) Health() *health.Ledger { return e.ledger }
