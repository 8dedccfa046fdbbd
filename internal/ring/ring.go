// Package ring implements the fixed-capacity single-producer/single-consumer
// buffer that sits between the input source and the entropy engine.
//
// Capacity is rounded up to a power of two so index wrapping is a mask
// instead of a modulo. The producer (the dedicated input-capture thread)
// calls Push; the consumer (the scheduler-thread analysis tick) calls Drain.
// No other goroutine may call either method — this is the same ownership
// split the daemon runtime enforces between its capture thread and its
// scheduler thread.
package ring

import (
	"sync/atomic"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// Buffer is a lock-free SPSC ring buffer of kinematic.Sample.
type Buffer struct {
	mask    uint64
	slots   []kinematic.Sample
	head    atomic.Uint64 // next write index, producer-owned
	tail    atomic.Uint64 // next read index, consumer-owned
	dropped atomic.Uint64 // samples dropped because the buffer was full
}

// New creates a Buffer with at least capacity slots, rounded up to the next
// power of two.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Buffer{
		mask:  uint64(size - 1),
		slots: make([]kinematic.Sample, size),
	}
}

// Push appends a sample. If the buffer is full the sample is dropped and the
// drop counter increments; the caller (the capture thread) never blocks.
func (b *Buffer) Push(s kinematic.Sample) bool {
	head := b.head.Load()
	tail := b.tail.Load()
	if head-tail >= uint64(len(b.slots)) {
		b.dropped.Add(1)
		return false
	}
	b.slots[head&b.mask] = s
	b.head.Store(head + 1)
	return true
}

// Drain moves every currently available sample into dst, which is grown if
// needed, and returns it. It is the only way samples leave the buffer: there
// is no random-access Peek, since nothing outside the entropy engine's
// analysis tick is allowed to inspect raw samples.
func (b *Buffer) Drain(dst []kinematic.Sample) []kinematic.Sample {
	head := b.head.Load()
	tail := b.tail.Load()
	n := head - tail
	if n == 0 {
		return dst[:0]
	}
	if cap(dst) < int(n) {
		dst = make([]kinematic.Sample, 0, n)
	}
	dst = dst[:0]
	for i := uint64(0); i < n; i++ {
		dst = append(dst, b.slots[(tail+i)&b.mask])
	}
	b.tail.Store(tail + n)
	return dst
}

// Len reports the number of samples currently buffered.
func (b *Buffer) Len() int {
	return int(b.head.Load() - b.tail.Load())
}

// Dropped reports the cumulative number of samples discarded due to a full
// buffer, a diagnostic signal surfaced on the `metrics` and `doctor` IPC
// commands.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Cap returns the buffer's slot count.
func (b *Buffer) Cap() int {
	return len(b.slots)
}
