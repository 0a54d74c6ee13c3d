package event

// Subscription identifies a registered listener so it can be removed later.
type Subscription uint64

type entry[T any] struct {
	id Subscription
	fn func(T)
}

// List is a callback-registration list owned by the publishing entity. It is
// not safe for concurrent use; owners mutate it from their tick goroutine.
type List[T any] struct {
	next    Subscription
	entries []entry[T]
	closed  bool
}

// Subscribe registers fn and returns a handle for Unsubscribe. Subscribing to
// a closed list returns 0 and never calls fn.
func (l *List[T]) Subscribe(fn func(T)) Subscription {
	if l == nil || fn == nil || l.closed {
		return 0
	}
	l.next++
	l.entries = append(l.entries, entry[T]{id: l.next, fn: fn})
	return l.next
}

// Unsubscribe removes the listener registered under id.
func (l *List[T]) Unsubscribe(id Subscription) {
	if l == nil || id == 0 {
		return
	}
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// Emit calls every listener in registration order. Listeners added during
// emission are first called on the next Emit.
func (l *List[T]) Emit(value T) {
	if l == nil || l.closed || len(l.entries) == 0 {
		return
	}
	snapshot := l.entries
	for _, e := range snapshot {
		e.fn(value)
	}
}

// Len reports the number of registered listeners.
func (l *List[T]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Close drops every listener. Later Subscribe and Emit calls are no-ops.
func (l *List[T]) Close() {
	if l == nil {
		return
	}
	l.closed = true
	l.entries = nil
}
