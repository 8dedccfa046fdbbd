//go:build linux

package sensor

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// inputEventSize is the size of the kernel's struct input_event on a
// 64-bit system: 16 bytes of timeval, then type/code/value.
const inputEventSize = 24

const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	relX = 0x00
	relY = 0x01
	absX = 0x00
	absY = 0x01
)

// EvdevBackend reads raw input_event records from /dev/input/eventX,
// classifying a device as pointer, keyboard, or touch by its capability
// bitmap the same way the retrieved HID-monitoring code identifies
// keyboards from /proc/bus/input/devices: it never decodes which key was
// pressed, only that a press event crossed the device.
type EvdevBackend struct {
	Want kinematic.SourceKind

	devicePath string
	file       *os.File
	counter    atomic.Uint64
}

// Open finds and opens the first matching input device for Want.
func (e *EvdevBackend) Open() error {
	devices, err := findDevices(e.Want)
	if err != nil || len(devices) == 0 {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var lastErr error
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			e.file = f
			e.devicePath = dev
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Close releases the device handle.
func (e *EvdevBackend) Close() error {
	if e.file == nil {
		return nil
	}
	return e.file.Close()
}

// Run reads input_event records until ctx is canceled, translating
// pointer/touch relative or absolute motion and keyboard key-press edges
// into kinematic samples.
func (e *EvdevBackend) Run(ctx context.Context, push func(kinematic.Sample)) error {
	buf := make([]byte, inputEventSize)
	var x, y float64
	var lastKeyTime time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := e.file.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if n < inputEventSize {
			continue
		}

		typ := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		val := int32(binary.LittleEndian.Uint32(buf[20:24]))

		switch {
		case typ == evRel && e.Want == kinematic.SourcePointer:
			switch code {
			case relX:
				x += float64(val)
			case relY:
				y += float64(val)
			}
			e.counter.Add(1)
			push(kinematic.Sample{T: time.Now(), Source: e.Want, X: x, Y: y, HWCounter: e.counter.Load()})

		case typ == evAbs && e.Want == kinematic.SourceTouch:
			switch code {
			case absX:
				x = float64(val)
			case absY:
				y = float64(val)
			}
			e.counter.Add(1)
			push(kinematic.Sample{T: time.Now(), Source: e.Want, X: x, Y: y, HWCounter: e.counter.Load()})

		case typ == evKey && e.Want == kinematic.SourceKeyboard && val == 1:
			now := time.Now()
			interKey := 0.0
			if !lastKeyTime.IsZero() {
				interKey = float64(now.Sub(lastKeyTime).Microseconds()) / 1000
			}
			lastKeyTime = now
			e.counter.Add(1)
			push(kinematic.Sample{T: now, Source: e.Want, InterKeyMs: interKey, HWCounter: e.counter.Load()})
		}
	}
}

// HWCounter returns the number of qualifying events this backend has
// observed directly from the device, independent of anything the ring
// buffer or entropy engine has consumed.
func (e *EvdevBackend) HWCounter() uint64 {
	return e.counter.Load()
}

// findDevices enumerates /dev/input/eventX nodes whose capability report
// in /proc/bus/input/devices matches the requested source kind.
func findDevices(want kinematic.SourceKind) ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var devices []string
	scanner := bufio.NewScanner(f)
	var handler string
	var hasKey, hasRel, hasAbs bool

	flush := func() {
		if handler == "" {
			return
		}
		switch want {
		case kinematic.SourceKeyboard:
			if hasKey && !hasRel {
				devices = append(devices, handler)
			}
		case kinematic.SourcePointer:
			if hasRel {
				devices = append(devices, handler)
			}
		case kinematic.SourceTouch:
			if hasAbs {
				devices = append(devices, handler)
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			hasKey = true
		case strings.HasPrefix(line, "B: REL="):
			hasRel = true
		case strings.HasPrefix(line, "B: ABS="):
			hasAbs = true
		case line == "":
			flush()
			handler, hasKey, hasRel, hasAbs = "", false, false, false
		}
	}
	flush()

	if len(devices) == 0 {
		matches, _ := filepath.Glob("/dev/input/by-id/*")
		devices = matches
	}
	return devices, nil
}
