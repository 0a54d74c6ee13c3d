package replication

import "sync"

// inbox is filled by network goroutines and drained by the tick goroutine.
type inbox[T any] struct {
	mu    sync.Mutex
	items []T
}

func (b *inbox[T]) push(item T) {
	b.mu.Lock()
	b.items = append(b.items, item)
	b.mu.Unlock()
}

func (b *inbox[T]) drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// idWindow remembers the most recent ids up to a fixed capacity.
type idWindow struct {
	capacity int
	seen     map[string]struct{}
	order    []string
}

func newIDWindow(capacity int) *idWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &idWindow{capacity: capacity, seen: make(map[string]struct{}, capacity)}
}

// add records id and reports whether it was new.
func (w *idWindow) add(id string) bool {
	if _, ok := w.seen[id]; ok {
		return false
	}
	if len(w.order) == w.capacity {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	return true
}
