package security

import (
	"sync"

	audit "healthcommons/pkg/platform/audit"
)

const defaultRingCapacity = 10000

// RingBuffer holds pending security events. A full ring overwrites its
// oldest event and counts the loss.
type RingBuffer struct {
	mu      sync.Mutex
	slots   []audit.SecurityEvent
	start   int
	size    int
	dropped int64
}

// NewRingBuffer creates a ring holding up to capacity events.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &RingBuffer{slots: make([]audit.SecurityEvent, capacity)}
}

// Enqueue appends event, overwriting the oldest one when full.
func (b *RingBuffer) Enqueue(event audit.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.slots)
	if b.size == capacity {
		b.slots[b.start] = event
		b.start = (b.start + 1) % capacity
		b.dropped++
		return
	}
	b.slots[(b.start+b.size)%capacity] = event
	b.size++
}

// DequeueBatch removes and returns up to n events, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []audit.SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.size)
	if n <= 0 {
		return nil
	}
	out := make([]audit.SecurityEvent, n)
	capacity := len(b.slots)
	for i := range out {
		idx := (b.start + i) % capacity
		out[i] = b.slots[idx]
		b.slots[idx] = audit.SecurityEvent{}
	}
	b.start = (b.start + n) % capacity
	b.size -= n
	return out
}

// Len reports how many events are waiting.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Dropped reports how many events were overwritten since creation.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
