//go:build !linux

package sensor

import (
	"context"
	"fmt"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// EvdevBackend has no equivalent on this platform; raw input capture is
// only implemented against Linux's /dev/input layer. Open always reports
// SensorUnavailable so the daemon runtime can fall back to MockBackend or
// refuse to start the sensor thread, per the caller's policy.
type EvdevBackend struct {
	Want kinematic.SourceKind
}

func (e *EvdevBackend) Open() error {
	return fmt.Errorf("%w: evdev capture not implemented on this platform", ErrUnavailable)
}

func (e *EvdevBackend) Close() error { return nil }

func (e *EvdevBackend) Run(ctx context.Context, push func(kinematic.Sample)) error {
	return ErrUnavailable
}

func (e *EvdevBackend) HWCounter() uint64 { return 0 }
