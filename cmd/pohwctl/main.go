// Command pohwctl is the operator and git-hook-facing CLI for pohwd: it
// reports daemon status/history/doctor output over the IPC socket, signals
// stop/reload via the singleton lock's PID, and (as `verify-work`) is the
// binary a pre-commit hook invokes to gate a commit on the Commit Gate.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iodevs-net/git-gov/internal/config"
	"github.com/iodevs-net/git-gov/internal/daemon"
	"github.com/iodevs-net/git-gov/internal/errkind"
	"github.com/iodevs-net/git-gov/internal/ipcproto"
)

const callTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: load config: %v\n", err)
		os.Exit(2)
	}

	var exitCode int
	switch os.Args[1] {
	case "status":
		exitCode = runStatus(cfg)
	case "doctor":
		exitCode = runDoctor(cfg)
	case "history":
		exitCode = runHistory(cfg)
	case "reload":
		exitCode = runSignal(cfg, "reload")
	case "stop":
		exitCode = runSignal(cfg, "stop")
	case "verify-work":
		exitCode = runVerifyWork(cfg)
	default:
		usage()
		exitCode = 2
	}
	os.Exit(exitCode)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pohwctl <status|doctor|history|reload|stop|verify-work>")
}

func runStatus(cfg *config.Config) int {
	client, err := ipcproto.Dial(cfg.IPC.SocketPath, callTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	defer client.Close()

	var resp ipcproto.StatusResponse
	if err := client.Call(ipcproto.Request{Op: ipcproto.OpStatus}, callTimeout, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	fmt.Printf("state: %s\nbalance: %.2f\ncns: %.1f\n", resp.State, resp.Balance, resp.CNS)
	return 0
}

func runDoctor(cfg *config.Config) int {
	client, err := ipcproto.Dial(cfg.IPC.SocketPath, callTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	defer client.Close()

	var resp ipcproto.DoctorResponse
	if err := client.Call(ipcproto.Request{Op: ipcproto.OpDoctor}, callTimeout, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	for _, c := range resp.Checks {
		fmt.Printf("ok:   %s\n", c)
	}
	for _, w := range resp.Warnings {
		fmt.Printf("warn: %s\n", w)
	}
	if !resp.OK {
		return 1
	}
	return 0
}

func runHistory(cfg *config.Config) int {
	client, err := ipcproto.Dial(cfg.IPC.SocketPath, callTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	defer client.Close()

	var resp ipcproto.HistoryResponse
	if err := client.Call(ipcproto.Request{Op: ipcproto.OpHistory, Limit: 20}, callTimeout, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	for _, e := range resp.Entries {
		fmt.Printf("%s  cns=%d  charged=%.2f  ts=%d\n", e.CommitTreeHash, e.CNSScore, e.CreditsCharged, e.TimestampNs)
	}
	return 0
}

func runSignal(cfg *config.Config, what string) int {
	mgr := daemon.NewManager(filepath.Dir(cfg.IPC.SocketPath))
	var err error
	switch what {
	case "stop":
		err = mgr.SignalStop()
	case "reload":
		err = mgr.SignalReload()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %s: %v\n", what, err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	if what == "stop" {
		if err := mgr.WaitForStop(10 * time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
			return 1
		}
	}
	return 0
}

// runVerifyWork is the pre-commit hook entry point: it gathers the
// staged diff and tree hash from git, asks the daemon to run the Commit
// Gate, and on success appends the resulting trailer to the pending
// commit message. On InsufficientEnergy it prints the 360° workspace
// report the daemon's detail doesn't carry itself: staged/unstaged/
// untracked file counts, gathered directly from git.
func runVerifyWork(cfg *config.Config) int {
	tree, err := gitWriteTree()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.SchemaError.ExitCode()
	}

	added, removed, addedBytes, removedBytes, err := gitStagedDiffStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.SchemaError.ExitCode()
	}

	client, err := ipcproto.Dial(cfg.IPC.SocketPath, callTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}
	defer client.Close()

	raw, err := client.CallRaw(ipcproto.Request{
		Op:           ipcproto.OpVerifyWork,
		Tree:         tree,
		Added:        added,
		Removed:      removed,
		AddedBytes:   addedBytes,
		RemovedBytes: removedBytes,
	}, 70*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.DaemonUnreachable.ExitCode()
	}

	if errResp, isErr := ipcproto.IsError(raw); isErr {
		kind := errkind.Kind(errResp.Kind)
		fmt.Fprintf(os.Stderr, "pohwctl: %s: %s\n", kind, errResp.Detail)
		if kind == errkind.InsufficientEnergy {
			printWorkspaceReport()
		}
		return kind.ExitCode()
	}

	var resp ipcproto.VerifyWorkResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: decode response: %v\n", err)
		return errkind.SchemaError.ExitCode()
	}

	if err := appendCommitTrailer(resp.Trailer); err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: %v\n", err)
		return errkind.SchemaError.ExitCode()
	}
	return 0
}
