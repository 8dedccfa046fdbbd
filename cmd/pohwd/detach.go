package main

import (
	"fmt"
	"os"
	"os/exec"
)

// relaunchDetached re-execs the current binary with its original
// arguments, marked via POHWD_DETACHED so the child runs in the
// foreground of its own new session instead of re-daemonizing again.
func relaunchDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), "POHWD_DETACHED=1")
	cmd.SysProcAttr = getDaemonSysProcAttr()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached process: %w", err)
	}
	fmt.Fprintf(os.Stderr, "pohwd: started in background, pid %d\n", cmd.Process.Pid)
	return nil
}
