package sim

import (
	"sync"

	"github.com/MurkesM/ARPG/internal/telemetry"
)

const (
	metricBufferDepth    = "sim_command_buffer_depth"
	metricBufferOverflow = "sim_command_buffer_overflow_total"
)

// CommandBuffer is a bounded FIFO of staged commands. Network goroutines push
// and the tick goroutine drains.
type CommandBuffer struct {
	mu      sync.Mutex
	slots   []Command
	start   int
	size    int
	metrics telemetry.Metrics
}

// NewCommandBuffer allocates room for capacity commands.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{slots: make([]Command, capacity), metrics: metrics}
}

// Capacity reports how many commands fit.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.slots)
}

// Push stages cmd. It reports false when the buffer is full.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == len(b.slots) {
		b.add(metricBufferOverflow, 1)
		return false
	}
	b.slots[(b.start+b.size)%len(b.slots)] = cmd
	b.size++
	b.depth()
	return true
}

// Drain removes and returns every staged command, oldest first.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return nil
	}
	out := make([]Command, 0, b.size)
	end := b.start + b.size
	if end <= len(b.slots) {
		out = append(out, b.slots[b.start:end]...)
	} else {
		out = append(out, b.slots[b.start:]...)
		out = append(out, b.slots[:end-len(b.slots)]...)
	}
	clear(b.slots)
	b.start, b.size = 0, 0
	b.depth()
	return out
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *CommandBuffer) add(key string, delta uint64) {
	if b.metrics != nil {
		b.metrics.Add(key, delta)
	}
}

func (b *CommandBuffer) depth() {
	if b.metrics != nil {
		b.metrics.Store(metricBufferDepth, uint64(b.size))
	}
}
