// Package sensor is the Input Source (C1): it owns the dedicated capture
// thread that reads raw pointer, keyboard, and touch events from the
// platform's input devices and turns them into kinematic.Sample values,
// pushed into the ring buffer without ever blocking on the analysis side.
//
// Every backend also exposes an independent hardware event counter read
// from a layer the causality validator can cross-check against sample
// throughput, the same jiggler defense the retrieved HID-monitoring code
// built around /dev/hidraw on Linux.
package sensor

import (
	"context"
	"errors"

	"github.com/iodevs-net/git-gov/internal/kinematic"
	"github.com/iodevs-net/git-gov/internal/ring"
)

// ErrUnavailable is returned by Open when no input device could be
// opened, typically a permissions problem or a missing device node.
var ErrUnavailable = errors.New("sensor: no input device available")

// Backend captures raw input events from one platform-specific source
// until its context is canceled.
type Backend interface {
	// Open acquires whatever device handles the backend needs. Returns
	// ErrUnavailable (wrapped) if none could be opened.
	Open() error
	// Close releases device handles.
	Close() error
	// Run blocks, pushing samples into push until ctx is canceled or a
	// fatal read error occurs. Never blocks on a full ring: push itself
	// is non-blocking (ring.Buffer.Push drops and counts on overflow).
	Run(ctx context.Context, push func(kinematic.Sample)) error
	// HWCounter returns the current value of this backend's independent
	// hardware event counter, monotonically increasing, used by the
	// causality validator.
	HWCounter() uint64
}

// Source drives one or more Backends into a shared ring buffer.
type Source struct {
	backends []Backend
	buf      *ring.Buffer
}

// New creates a Source that fans the given backends into buf.
func New(buf *ring.Buffer, backends ...Backend) *Source {
	return &Source{backends: backends, buf: buf}
}

// Run opens every backend and runs them concurrently until ctx is
// canceled, returning the first fatal error encountered (if any other
// backend is still healthy, its samples are simply lost once Run
// returns — the daemon runtime is expected to treat any backend error as
// SensorUnavailable and restart or degrade).
func (s *Source) Run(ctx context.Context) error {
	for _, b := range s.backends {
		if err := b.Open(); err != nil {
			return err
		}
	}
	defer func() {
		for _, b := range s.backends {
			_ = b.Close()
		}
	}()

	errCh := make(chan error, len(s.backends))
	for _, b := range s.backends {
		b := b
		go func() {
			errCh <- b.Run(ctx, func(sample kinematic.Sample) {
				s.buf.Push(sample)
			})
		}()
	}

	for range s.backends {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

// HWCounter sums every backend's independent hardware counter, the
// combined signal the causality validator compares against consumed
// sample count.
func (s *Source) HWCounter() uint64 {
	var total uint64
	for _, b := range s.backends {
		total += b.HWCounter()
	}
	return total
}
