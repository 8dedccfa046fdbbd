package sensor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// MockBackend generates synthetic samples on a fixed interval, for tests
// and for environments with no readable input device. Its hardware
// counter increments in lockstep with samples produced, so it never
// trips the causality validator on its own.
type MockBackend struct {
	Source   kinematic.SourceKind
	Interval time.Duration
	Gen      func(tick int) (x, y float64)

	counter atomic.Uint64
}

// Open is a no-op; MockBackend needs no device handle.
func (m *MockBackend) Open() error { return nil }

// Close is a no-op.
func (m *MockBackend) Close() error { return nil }

// Run emits one sample per Interval until ctx is canceled.
func (m *MockBackend) Run(ctx context.Context, push func(kinematic.Sample)) error {
	interval := m.Interval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			x, y := 0.0, 0.0
			if m.Gen != nil {
				x, y = m.Gen(tick)
			}
			push(kinematic.Sample{
				T:         time.Now(),
				Source:    m.Source,
				X:         x,
				Y:         y,
				HWCounter: m.counter.Add(1),
			})
			tick++
		}
	}
}

// HWCounter returns the number of samples this backend has produced.
func (m *MockBackend) HWCounter() uint64 {
	return m.counter.Load()
}
