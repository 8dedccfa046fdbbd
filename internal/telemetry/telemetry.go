// Package telemetry implements the editor telemetry protocol: a
// line-delimited JSON channel editors use to report coarse focus context
// to the daemon. It is advisory only and never replaces the kinematic
// ground truth gathered by the sensor package.
package telemetry

import (
	"encoding/json"

	"github.com/iodevs-net/git-gov/internal/schemas"
)

// EventType tags which variant an Event decodes to.
type EventType string

const (
	EventFocusGained EventType = "focus_gained"
	EventFocusLost    EventType = "focus_lost"
	EventEditBurst    EventType = "edit_burst"
	EventNavigation   EventType = "navigation"
	EventHeartbeat    EventType = "heartbeat"
	EventDisconnect   EventType = "disconnect"
)

// NavType enumerates the navigation event's nav_type field.
type NavType string

const (
	NavScroll          NavType = "scroll"
	NavFileSwitch      NavType = "file_switch"
	NavGoToDefinition  NavType = "go_to_definition"
	NavHover           NavType = "hover"
)

// Event is the tagged union decoded from one telemetry line. Only the
// fields relevant to Type are populated; FilePath is nil when the
// editor does not supply one (e.g. heartbeat, disconnect).
type Event struct {
	Type         EventType `json:"type"`
	FilePath     *string   `json:"file_path,omitempty"`
	TimestampMs  uint64    `json:"timestamp_ms"`
	CharsDelta   int32     `json:"chars_delta,omitempty"`
	NavType      NavType   `json:"nav_type,omitempty"`
}

// ErrMalformed is returned by Decode for a line that is not valid JSON
// or is missing its type tag; the server drops such lines silently per
// the protocol contract rather than propagating this error to editors.
type ErrMalformed struct{ Line string }

func (e *ErrMalformed) Error() string { return "telemetry: malformed event line" }

// Decode parses one JSON line into an Event.
func Decode(line []byte) (Event, error) {
	if err := schemas.ValidateTelemetryEvent(line); err != nil {
		return Event{}, &ErrMalformed{Line: string(line)}
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, &ErrMalformed{Line: string(line)}
	}
	switch ev.Type {
	case EventFocusGained, EventFocusLost, EventEditBurst, EventNavigation, EventHeartbeat, EventDisconnect:
	default:
		return Event{}, &ErrMalformed{Line: string(line)}
	}
	return ev, nil
}
