//go:build linux

package causality

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	screenSaverService   = "org.freedesktop.ScreenSaver"
	screenSaverPath      = "/org/freedesktop/ScreenSaver"
	screenSaverInterface = "org.freedesktop.ScreenSaver"
)

// dbusIdleSource queries the desktop session's screen-saver service over
// the D-Bus session bus to determine whether the screen is locked.
type dbusIdleSource struct {
	conn *dbus.Conn
}

// NewDBusIdleSource connects to the session bus and returns an IdleSource
// backed by org.freedesktop.ScreenSaver. Callers should treat a non-nil
// error as "idle checking unavailable" and fall back to a no-op source
// rather than failing daemon startup.
func NewDBusIdleSource() (IdleSource, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("causality: connect session bus: %w", err)
	}
	return &dbusIdleSource{conn: conn}, nil
}

func (d *dbusIdleSource) Idle() (bool, error) {
	obj := d.conn.Object(screenSaverService, dbus.ObjectPath(screenSaverPath))
	call := obj.Call(screenSaverInterface+".GetActive", 0)
	if call.Err != nil {
		return false, fmt.Errorf("causality: GetActive: %w", call.Err)
	}
	var active bool
	if err := call.Store(&active); err != nil {
		return false, fmt.Errorf("causality: decode GetActive reply: %w", err)
	}
	return active, nil
}
