package security

import (
	"fmt"
	"os"
	"runtime"
)

// ProcessSecurityState is a point-in-time snapshot of the daemon
// process's privilege level and platform hardening posture, surfaced
// through the diagnostics IPC op so `pohwctl doctor` can explain why
// capture isn't running.
type ProcessSecurityState struct {
	// Process identity
	PID      int    `json:"pid"`
	UID      int    `json:"uid"`
	EUID     int    `json:"euid"`
	GID      int    `json:"gid"`
	EGID     int    `json:"egid"`
	IsRoot   bool   `json:"is_root"`
	Username string `json:"username,omitempty"`

	// Environment
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname,omitempty"`

	// Security state
	Debugger     bool     `json:"debugger_attached"`
	Sandboxed    bool     `json:"sandboxed"`
	Capabilities []string `json:"capabilities,omitempty"`

	// InputAccess reports whether this process can read raw pointer and
	// keyboard events, the capability the sensor package's capture thread
	// depends on. On Linux this means root or membership in the "input"
	// group; other platforms have no equivalent gate and always pass.
	InputAccess bool `json:"input_access"`

	// Warnings
	Warnings []string `json:"warnings,omitempty"`
}

// CaptureProcessSecurityState reads the current process's uid/gid,
// checks for a debugger and sandbox, and probes raw-input device
// access, assembling the result the daemon reports over IPC.
func CaptureProcessSecurityState() *ProcessSecurityState {
	state := &ProcessSecurityState{
		PID:      os.Getpid(),
		UID:      os.Getuid(),
		EUID:     os.Geteuid(),
		GID:      os.Getgid(),
		EGID:     os.Getegid(),
		IsRoot:   os.Geteuid() == 0,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		state.Hostname = hostname
	}

	checkDebugger(state)
	checkSandbox(state)
	checkInputAccess(state)

	if state.IsRoot {
		state.Warnings = append(state.Warnings, "Running as root - consider dropping privileges")
	}

	if state.Debugger {
		state.Warnings = append(state.Warnings, "Debugger attached - secrets may be exposed")
	}

	if !state.InputAccess {
		state.Warnings = append(state.Warnings, "Not a member of the \"input\" group - pointer/keyboard capture will fail to open /dev/input")
	}

	return state
}

// DropPrivileges switches the process to uid/gid after startup has
// opened /dev/input as root, matching the setuid-daemon pattern of
// binding to a privileged resource then giving up the privilege.
func DropPrivileges(uid, gid int) error {
	if runtime.GOOS == "windows" {
		return fmt.Errorf("privilege dropping not supported on Windows")
	}

	if os.Geteuid() != 0 {
		return nil // Already non-root
	}

	return dropPrivilegesUnix(uid, gid)
}

// EnforceNonRoot panics if the process is running as root, for
// entry points (pohwverify, pohwctl) that never need root and
// shouldn't be run that way.
func EnforceNonRoot() {
	if os.Geteuid() == 0 {
		panic("security: refusing to run as root")
	}
}

// WarnIfRoot reports whether the process is running as root; callers
// log a warning themselves so the message carries their own logger.
func WarnIfRoot() bool {
	return os.Geteuid() == 0
}

// SecureEnvironment clears library-injection environment variables,
// tightens the umask, and pins the locale, run once at daemon
// startup before any key material is touched.
func SecureEnvironment() error {
	sensitiveVars := []string{
		"LD_PRELOAD",
		"LD_LIBRARY_PATH",
		"DYLD_INSERT_LIBRARIES",
		"DYLD_LIBRARY_PATH",
		"IFS",
		"CDPATH",
		"ENV",
		"BASH_ENV",
	}

	for _, v := range sensitiveVars {
		os.Unsetenv(v)
	}

	setUmask(0077)

	os.Setenv("LC_ALL", "C.UTF-8")
	os.Setenv("LANG", "C.UTF-8")

	return nil
}

// ResourceLimits bounds the daemon process against a runaway ring
// buffer or log volume consuming the host.
type ResourceLimits struct {
	MaxFileSize  uint64 // Maximum file size (bytes)
	MaxMemory    uint64 // Maximum memory usage (bytes)
	MaxCPUTime   uint64 // Maximum CPU time (seconds)
	MaxOpenFiles uint64 // Maximum number of open files
	MaxProcesses uint64 // Maximum number of processes
	CoreDumpSize uint64 // Core dump size (0 = disabled)
}

// DefaultResourceLimits returns limits sized for a background daemon,
// not a batch job: modest memory and file-descriptor ceilings, no
// core dumps.
func DefaultResourceLimits() *ResourceLimits {
	return &ResourceLimits{
		MaxFileSize:  1 << 30, // 1GB
		MaxMemory:    2 << 30, // 2GB
		MaxCPUTime:   3600,    // 1 hour
		MaxOpenFiles: 1024,
		MaxProcesses: 128,
		CoreDumpSize: 0, // Disable core dumps (may contain secrets)
	}
}

// ApplyResourceLimits installs limits via the platform's rlimit
// mechanism (a no-op stub on Windows, which has no equivalent).
func ApplyResourceLimits(limits *ResourceLimits) error {
	return applyResourceLimits(limits)
}

// DisableCoreDumps sets the core dump size limit to zero, so a panic
// in the capture thread can't write raw pointer/keystroke timing data
// to a core file on disk.
func DisableCoreDumps() error {
	limits := &ResourceLimits{CoreDumpSize: 0}
	return applyCoreLimits(limits)
}

// SecurityChecklist is the result of RunSecurityChecklist: one
// ChecklistItem per hardening property the daemon expects of its
// runtime environment.
type SecurityChecklist struct {
	Items []ChecklistItem
}

// ChecklistItem is one pass/fail hardening check with a human-readable
// warning to surface when it fails.
type ChecklistItem struct {
	Name        string
	Description string
	Passed      bool
	Warning     string
	Error       error
}

// RunSecurityChecklist runs every startup hardening check pohwd cares
// about: non-root, no debugger, restrictive umask, core dumps off,
// and raw-input device access.
func RunSecurityChecklist() *SecurityChecklist {
	checklist := &SecurityChecklist{}

	checklist.Items = append(checklist.Items, ChecklistItem{
		Name:        "non_root",
		Description: "Process is not running as root",
		Passed:      os.Geteuid() != 0,
		Warning:     "Running as root increases attack surface",
	})

	state := CaptureProcessSecurityState()

	checklist.Items = append(checklist.Items, ChecklistItem{
		Name:        "no_debugger",
		Description: "No debugger is attached",
		Passed:      !state.Debugger,
		Warning:     "Debugger attached - secrets may be exposed",
	})

	currentUmask := getCurrentUmask()
	checklist.Items = append(checklist.Items, ChecklistItem{
		Name:        "secure_umask",
		Description: "Umask is restrictive (077 or stricter)",
		Passed:      currentUmask >= 0077,
		Warning:     fmt.Sprintf("Umask %04o allows group/other access", currentUmask),
	})

	coreEnabled := areCoreEnabled()
	checklist.Items = append(checklist.Items, ChecklistItem{
		Name:        "core_disabled",
		Description: "Core dumps are disabled",
		Passed:      !coreEnabled,
		Warning:     "Core dumps could expose secrets",
	})

	checklist.Items = append(checklist.Items, ChecklistItem{
		Name:        "input_access",
		Description: "Process can read pointer/keyboard input devices",
		Passed:      state.InputAccess,
		Warning:     "Not in the \"input\" group; the sensor capture thread will fail to start",
	})

	return checklist
}

// AllPassed reports whether every checklist item passed.
func (c *SecurityChecklist) AllPassed() bool {
	for _, item := range c.Items {
		if !item.Passed {
			return false
		}
	}
	return true
}

// Warnings collects the warning text of every failed item, in
// checklist order.
func (c *SecurityChecklist) Warnings() []string {
	var warnings []string
	for _, item := range c.Items {
		if !item.Passed && item.Warning != "" {
			warnings = append(warnings, item.Warning)
		}
	}
	return warnings
}
