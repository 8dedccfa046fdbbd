// Package daemon implements the Daemon Runtime (C9): the long-running
// process that owns the dedicated input-capture thread and the cooperative
// scheduler tying together the ring buffer, entropy engine, causality
// validator, attention battery, commit gate, and the IPC/telemetry
// servers.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/iodevs-net/git-gov/internal/security"
)

// ErrAlreadyRunning is returned by Manager.Acquire when another process
// already holds the singleton lock.
var ErrAlreadyRunning = errors.New("daemon: already running")

// State is the persisted record of a running daemon (PID, start time and
// node identity), written by WriteState and read back by ReadState.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	NodeID    string    `json:"node_id,omitempty"`
}

// Manager owns the singleton lock, PID file, and state file that let a
// short-lived CLI discover and signal a running daemon without itself
// holding any socket connection.
type Manager struct {
	dir       string
	pidFile   string
	stateFile string
	lockFile  string

	lockHandle *os.File
}

// NewManager creates a Manager rooted at dir, the daemon's runtime
// directory (typically alongside the IPC socket).
func NewManager(dir string) *Manager {
	return &Manager{
		dir:       dir,
		pidFile:   filepath.Join(dir, "pohwd.pid"),
		stateFile: filepath.Join(dir, "pohwd.state"),
		lockFile:  filepath.Join(dir, "pohwd.lock"),
	}
}

// Acquire takes the exclusive singleton lock and writes the PID file.
// Returns ErrAlreadyRunning if another live process already holds it.
func (m *Manager) Acquire() error {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("daemon: create runtime dir: %w", err)
	}

	f, err := os.OpenFile(m.lockFile, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("daemon: open lock file: %w", err)
	}

	if err := security.LockFile(f); err != nil {
		f.Close()
		return ErrAlreadyRunning
	}

	m.lockHandle = f
	return os.WriteFile(m.pidFile, []byte(strconv.Itoa(os.Getpid())), 0600)
}

// Release drops the lock and removes the PID and state files. Called
// during graceful shutdown only; a crashed daemon leaves the lock file
// behind but the flock itself is released by the kernel when the process
// dies, so the next Acquire still succeeds.
func (m *Manager) Release() error {
	if m.lockHandle != nil {
		_ = security.UnlockFile(m.lockHandle)
		m.lockHandle.Close()
		m.lockHandle = nil
	}
	os.Remove(m.pidFile)
	os.Remove(m.stateFile)
	return nil
}

// WriteState persists the daemon's identity and start time to the state
// file.
func (m *Manager) WriteState(s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("daemon: marshal state: %w", err)
	}
	return os.WriteFile(m.stateFile, data, 0600)
}

// ReadState reads the persisted daemon state.
func (m *Manager) ReadState() (*State, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("daemon: unmarshal state: %w", err)
	}
	if s.NodeID != "" {
		if err := security.ValidateNodeID(s.NodeID); err != nil {
			return nil, fmt.Errorf("daemon: state file %s: %w", m.stateFile, err)
		}
	}
	return &s, nil
}

// ReadPID reads the PID file.
func (m *Manager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("daemon: invalid pid file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether the PID in the PID file names a live process
// that is actually pohwd, guarding against a stale PID file whose number
// has since been recycled by an unrelated process.
func (m *Manager) IsRunning() bool {
	pid, err := m.ReadPID()
	if err != nil {
		return false
	}
	return isPohwdProcess(pid)
}

func isPohwdProcess(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := proc.Name()
	if err != nil {
		// Name lookup can fail on a process mid-exit; treat it as gone
		// rather than risk signaling an unrelated recycled PID.
		return false
	}
	return strings.Contains(name, "pohwd")
}

// SignalStop sends SIGTERM to the running daemon.
func (m *Manager) SignalStop() error {
	pid, err := m.ReadPID()
	if err != nil {
		return fmt.Errorf("daemon: read pid: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("daemon: find process: %w", err)
	}
	return proc.Signal(syscall.SIGTERM)
}

// SignalReload sends SIGHUP to the running daemon, triggering a config
// reload in place of a restart.
func (m *Manager) SignalReload() error {
	pid, err := m.ReadPID()
	if err != nil {
		return fmt.Errorf("daemon: read pid: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("daemon: find process: %w", err)
	}
	return proc.Signal(syscall.SIGHUP)
}

// WaitForStop polls IsRunning until it returns false or timeout elapses.
func (m *Manager) WaitForStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon: did not stop within %v", timeout)
}
