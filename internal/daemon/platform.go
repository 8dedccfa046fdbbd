package daemon

import (
	"runtime"

	"github.com/iodevs-net/git-gov/internal/causality"
	"github.com/iodevs-net/git-gov/internal/kinematic"
	"github.com/iodevs-net/git-gov/internal/logging"
)

const (
	pointerSource     = kinematic.SourcePointer
	keyboardSource    = kinematic.SourceKeyboard
	mockPointerSource = kinematic.SourcePointer
)

// newIdleSource returns the D-Bus screen-lock source on Linux, or nil
// (disabling idle checking) everywhere else.
func newIdleSource(log *logging.Logger) causality.IdleSource {
	if runtime.GOOS != "linux" {
		return nil
	}
	src, err := causality.NewDBusIdleSource()
	if err != nil {
		log.Warn("daemon: session bus idle source unavailable, idle checking disabled", "error", err)
		return nil
	}
	return src
}
