package logging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies timestamps for events published without one.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Printer receives router diagnostics (drops, sink failures).
type Printer interface {
	Printf(format string, args ...any)
}

// Sink persists or displays events. Write is called from a single worker
// goroutine per sink.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// Router fans events out to sink workers through a bounded queue. Publish
// Router fans events out to sink lanes through a bounded queue. Publish never
// blocks; overflow is counted and reported at most once per DropWarnInterval.
type Router struct {
	queue    chan Event
	lanes    []*sinkLane
	clock    Clock
	fallback Printer
	severity Severity
	fields   map[string]any
	warn     dropWarner

	closing chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
}

// RouterStats reports router throughput. SinkDropped counts events a sink
// lane discarded because its backlog was full.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	SinkDropped  map[string]uint64
}

const (
	defaultQueueSize = 512
	minLaneBacklog   = 32
	maxLaneBacklog   = 1024
	maxRetryShift    = 5
)

// NewRouter starts a router that forwards to the enabled sinks. Every name in
// cfg.EnabledSinks must be present in sinks.
func NewRouter(cfg Config, clock Clock, fallback Printer, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	backlog := min(max(queueSize, minLaneBacklog), maxLaneBacklog)

	names := append([]string(nil), cfg.EnabledSinks...)
	sort.Strings(names)
	lanes := make([]*sinkLane, 0, len(names))
	for _, name := range names {
		sink := sinks[name]
		if sink == nil {
			return nil, fmt.Errorf("logging: sink %q enabled but not provided", name)
		}
		lanes = append(lanes, &sinkLane{name: name, sink: sink, events: make(chan Event, backlog), fallback: fallback})
	}

	interval := cfg.DropWarnInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r := &Router{
		queue:    make(chan Event, queueSize),
		lanes:    lanes,
		clock:    clock,
		fallback: fallback,
		severity: cfg.MinimumSeverity,
		fields:   cfg.CloneFields(),
		warn:     dropWarner{interval: interval},
		closing:  make(chan struct{}),
	}
	for _, lane := range lanes {
		r.wg.Add(1)
		go func(l *sinkLane) {
			defer r.wg.Done()
			l.run()
		}(lane)
	}
	r.wg.Add(1)
	go r.dispatch()
	return r, nil
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, lane := range r.lanes {
			close(lane.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.closing:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.severity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	r.eventsTotal.Add(1)
	for _, lane := range r.lanes {
		lane.offer(event)
	}
}

// Publish implements Publisher.
func (r *Router) Publish(ctx context.Context, event Event) {
	if r == nil || event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.droppedTotal.Add(1)
		if r.warn.due(time.Now()) {
			r.fallback.Printf("dropping event type=%s tick=%d (%d dropped so far)", event.Type, event.Tick, r.droppedTotal.Load())
		}
	}
}

// Close stops accepting events, flushes queued ones and closes every sink.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.closing)
	flushed := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, lane := range r.lanes {
		if err := lane.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", lane.name, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns the router counters.
func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
		SinkDropped:  make(map[string]uint64, len(r.lanes)),
	}
	for _, lane := range r.lanes {
		stats.SinkDropped[lane.name] = lane.dropped.Load()
	}
	return stats
}

// Sink returns the enabled sink registered under name.
func (r *Router) Sink(name string) Sink {
	for _, lane := range r.lanes {
		if lane.name == name {
			return lane.sink
		}
	}
	return nil
}

// dropWarner rate limits overflow warnings.
type dropWarner struct {
	interval time.Duration
	mu       sync.Mutex
	next     time.Time
}

func (w *dropWarner) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Before(w.next) {
		return false
	}
	w.next = now.Add(w.interval)
	return true
}

// sinkLane owns one sink. Write is only ever called from its goroutine.
type sinkLane struct {
	name     string
	sink     Sink
	events   chan Event
	fallback Printer
	dropped  atomic.Uint64
}

func (l *sinkLane) offer(event Event) {
	select {
	case l.events <- cloneEvent(event):
	default:
		if l.dropped.Add(1) == 1 {
			l.fallback.Printf("sink %s backlog full, dropping events", l.name)
		}
	}
}

func (l *sinkLane) run() {
	failures := 0
	for event := range l.events {
		if failures > 0 {
			time.Sleep(retryDelay(failures))
		}
		err := l.sink.Write(event)
		if err == nil {
			failures = 0
			continue
		}
		failures++
		l.fallback.Printf("sink %s failed: %v (retry in %s)", l.name, err, retryDelay(failures))
	}
}

// retryDelay doubles per consecutive failure, capped at 32 seconds.
func retryDelay(failures int) time.Duration {
	return time.Second << min(failures, maxRetryShift)
}
