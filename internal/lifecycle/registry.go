package lifecycle

import (
	"sync"

	"github.com/MurkesM/ARPG/internal/event"
)

// Entity is anything the registry can track.
type Entity interface {
	EntityID() string
}

// Handle is a presentation-side resource bound to one entity.
type Handle interface {
	Release()
}

// HandleFactory creates the presentation handle for a newly spawned entity.
type HandleFactory interface {
	NewHandle(e Entity) Handle
}

// HandleFactoryFunc adapts a function into a HandleFactory.
type HandleFactoryFunc func(e Entity) Handle

// NewHandle implements HandleFactory.
func (f HandleFactoryFunc) NewHandle(e Entity) Handle { return f(e) }

type nopHandle struct{}

func (nopHandle) Release() {}

// Spawned is emitted once per registered entity.
type Spawned struct {
	EntityID string
}

// Destroyed is emitted once per released entity.
type Destroyed struct {
	EntityID string
}

// DefaultTombstoneCapacity bounds how many destroyed ids a registry remembers.
const DefaultTombstoneCapacity = 4096

// Registry maps entities to presentation handles. It is shared by every node
// in the process, so spawn and destroy notifications for the same entity can
// arrive concurrently and out of order. Entity ids are never reused.
type Registry struct {
	mu         sync.Mutex
	factory    HandleFactory
	handles    map[string]Handle
	tombstones tombstones

	spawned   event.List[Spawned]
	destroyed event.List[Destroyed]
}

// NewRegistry constructs a registry. A nil factory yields no-op handles.
func NewRegistry(factory HandleFactory) *Registry {
	if factory == nil {
		factory = HandleFactoryFunc(func(Entity) Handle { return nopHandle{} })
	}
	return &Registry{
		factory:    factory,
		handles:    make(map[string]Handle),
		tombstones: newTombstones(DefaultTombstoneCapacity),
	}
}

var (
	sharedOnce sync.Once
	shared     *Registry
)

// Shared returns the process-wide registry.
func Shared() *Registry {
	sharedOnce.Do(func() { shared = NewRegistry(nil) })
	return shared
}

// SetFactory replaces the handle factory used for later spawns and returns the
// previous one. A nil factory leaves the current one in place.
func (r *Registry) SetFactory(factory HandleFactory) HandleFactory {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.factory
	if factory != nil {
		r.factory = factory
	}
	return prev
}

// Spawn registers e. It reports false when e is already registered or was
// destroyed before its spawn arrived.
func (r *Registry) Spawn(e Entity) bool {
	if e == nil || e.EntityID() == "" {
		return false
	}
	id := e.EntityID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tombstones.has(id) {
		return false
	}
	if _, ok := r.handles[id]; ok {
		return false
	}
	handle := r.factory.NewHandle(e)
	if handle == nil {
		handle = nopHandle{}
	}
	r.handles[id] = handle
	r.spawned.Emit(Spawned{EntityID: id})
	return true
}

// Destroy releases the handle for id exactly once. A destroy that arrives
// before the spawn leaves a tombstone so the late spawn is ignored.
func (r *Registry) Destroy(id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	handle, ok := r.handles[id]
	delete(r.handles, id)
	r.tombstones.add(id)
	if ok {
		r.destroyed.Emit(Destroyed{EntityID: id})
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	handle.Release()
	return true
}

// Handle returns the handle registered for id.
func (r *Registry) Handle(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Len reports the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// OnSpawned subscribes to registrations. Listeners run under the registry
// lock and must not call back into the registry.
func (r *Registry) OnSpawned(fn func(Spawned)) event.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawned.Subscribe(fn)
}

// OnDestroyed subscribes to releases. The same locking rule as OnSpawned
// applies.
func (r *Registry) OnDestroyed(fn func(Destroyed)) event.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed.Subscribe(fn)
}

// Unsubscribe removes a spawn or destroy listener.
func (r *Registry) Unsubscribe(spawned, destroyed event.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned.Unsubscribe(spawned)
	r.destroyed.Unsubscribe(destroyed)
}

// tombstones remembers the most recently destroyed ids, evicting the oldest
// once full.
type tombstones struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newTombstones(capacity int) tombstones {
	return tombstones{ids: make(map[string]struct{}, capacity), ring: make([]string, max(capacity, 1))}
}

func (t *tombstones) has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *tombstones) add(id string) {
	if t.has(id) {
		return
	}
	if old := t.ring[t.next]; old != "" {
		delete(t.ids, old)
	}
	t.ring[t.next] = id
	t.ids[id] = struct{}{}
	t.next = (t.next + 1) % len(t.ring)
}

func (t *tombstones) len() int { return len(t.ids) }
