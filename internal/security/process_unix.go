//go:build unix
// +build unix

package security

import (
	"os"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// checkInputAccess reports whether the process can read raw evdev nodes
// under /dev/input: as root, or as a member of the "input" group those
// device files are typically group-owned by. Platforms with no such
// group (macOS, BSD) have nothing evdev-specific to gate, so this always
// reports access available there.
func checkInputAccess(state *ProcessSecurityState) {
	if state.EUID == 0 {
		state.InputAccess = true
		return
	}

	grp, err := user.LookupGroup("input")
	if err != nil {
		state.InputAccess = true
		return
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		state.InputAccess = true
		return
	}
	groups, err := unix.Getgroups()
	if err != nil {
		state.InputAccess = true
		return
	}
	for _, g := range groups {
		if g == gid {
			state.InputAccess = true
			return
		}
	}
	state.InputAccess = false
}

// checkDebugger reads /proc/self/status for a nonzero TracerPid,
// the signal a live ptrace attach leaves for anyone reading the
// sensor-capture process's timing data.
func checkDebugger(state *ProcessSecurityState) {
	if data, err := os.ReadFile("/proc/self/status"); err == nil {
		for _, line := range splitLines(string(data)) {
			if len(line) > 10 && line[:10] == "TracerPid:" {
				tracer := line[11:]
				state.Debugger = tracer != "0" && tracer != ""
				return
			}
		}
	}

	state.Debugger = false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// checkSandbox looks for a cgroup or /.dockerenv marker indicating
// pohwd is running inside a container, informational context for
// the diagnostics report rather than a gate on anything.
func checkSandbox(state *ProcessSecurityState) {
	if data, err := os.ReadFile("/proc/self/cgroup"); err == nil {
		state.Sandboxed = containsWord(string(data), "sandbox")
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		state.Sandboxed = true
	}
}

func containsWord(s, word string) bool {
	for i := 0; i <= len(s)-len(word); i++ {
		if s[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

// dropPrivilegesUnix clears supplementary groups then sets gid before
// uid, the order that avoids a moment where the process holds a
// dropped uid but retained group privileges.
func dropPrivilegesUnix(uid, gid int) error {
	if err := syscall.Setgroups([]int{}); err != nil {
		return err
	}

	if err := syscall.Setgid(gid); err != nil {
		return err
	}
	if err := syscall.Setegid(gid); err != nil {
		return err
	}

	if err := syscall.Setuid(uid); err != nil {
		return err
	}
	if err := syscall.Seteuid(uid); err != nil {
		return err
	}

	return nil
}

// setUmask sets the process umask, returning the previous value.
func setUmask(mask int) int {
	return syscall.Umask(mask)
}

// getCurrentUmask reads the umask without permanently changing it.
func getCurrentUmask() int {
	current := syscall.Umask(0)
	syscall.Umask(current)
	return current
}

// applyResourceLimits installs each configured rlimit via
// setrlimit(2), skipping any limit left at its zero value and
// tolerating a kernel that rejects one it doesn't support.
func applyResourceLimits(limits *ResourceLimits) error {
	if limits.MaxFileSize > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{
			Cur: limits.MaxFileSize,
			Max: limits.MaxFileSize,
		}); err != nil {
			// Non-fatal: some systems may not support all limits
		}
	}

	if limits.MaxMemory > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{
			Cur: limits.MaxMemory,
			Max: limits.MaxMemory,
		}); err != nil {
		}
	}

	if limits.MaxCPUTime > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{
			Cur: limits.MaxCPUTime,
			Max: limits.MaxCPUTime,
		}); err != nil {
		}
	}

	if limits.MaxOpenFiles > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{
			Cur: limits.MaxOpenFiles,
			Max: limits.MaxOpenFiles,
		}); err != nil {
		}
	}

	if limits.MaxProcesses > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{
			Cur: limits.MaxProcesses,
			Max: limits.MaxProcesses,
		}); err != nil {
		}
	}

	return applyCoreLimits(limits)
}

// applyCoreLimits sets RLIMIT_CORE, used on its own by
// DisableCoreDumps without touching the daemon's other limits.
func applyCoreLimits(limits *ResourceLimits) error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{
		Cur: limits.CoreDumpSize,
		Max: limits.CoreDumpSize,
	})
}

// areCoreEnabled reports whether either the soft or hard RLIMIT_CORE
// is nonzero.
func areCoreEnabled() bool {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_CORE, &rlimit); err != nil {
		return true // Assume enabled if we can't check
	}
	return rlimit.Cur > 0 || rlimit.Max > 0
}
