//go:build !linux

package causality

// NewDBusIdleSource is only implemented on Linux; other platforms have no
// equivalent desktop idle signal wired into the causality validator yet.
func NewDBusIdleSource() (IdleSource, error) {
	return noopIdleSource{}, nil
}
