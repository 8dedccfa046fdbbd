package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// gitWriteTree writes the current index as a tree object and returns its
// hash, the same tree hash the resulting commit will carry.
func gitWriteTree() (string, error) {
	out, err := exec.Command("git", "write-tree").Output()
	if err != nil {
		return "", fmt.Errorf("git write-tree: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// gitStagedDiffStats returns added/removed line counts and the raw
// added/removed byte content of the staged diff, the inputs the Commit
// Gate prices and runs its compression distance (NCD) over.
func gitStagedDiffStats() (added, removed uint32, addedBytes, removedBytes []byte, err error) {
	out, err := exec.Command("git", "diff", "--cached", "--no-color", "-U0").Output()
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("git diff --cached: %w", err)
	}

	var addedBuf, removedBuf bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			added++
			addedBuf.WriteString(line[1:])
			addedBuf.WriteByte('\n')
		case strings.HasPrefix(line, "-"):
			removed++
			removedBuf.WriteString(line[1:])
			removedBuf.WriteByte('\n')
		}
	}
	return added, removed, addedBuf.Bytes(), removedBuf.Bytes(), scanner.Err()
}

// workspaceCounts tallies staged, unstaged, and untracked file counts
// from `git status --porcelain=v1`, the 360° workspace report the
// InsufficientEnergy error prints alongside the daemon's own detail.
func workspaceCounts() (staged, unstaged, untracked int, err error) {
	out, err := exec.Command("git", "status", "--porcelain=v1").Output()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("git status: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 2 {
			continue
		}
		switch {
		case strings.HasPrefix(line, "??"):
			untracked++
		default:
			if line[0] != ' ' {
				staged++
			}
			if line[1] != ' ' {
				unstaged++
			}
		}
	}
	return staged, unstaged, untracked, scanner.Err()
}

// printWorkspaceReport prints the git-derived staged/unstaged/untracked
// counts to stderr, no paths beyond what git status itself shows.
func printWorkspaceReport() {
	staged, unstaged, untracked, err := workspaceCounts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwctl: workspace report unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "workspace: %d staged, %d unstaged, %d untracked\n", staged, unstaged, untracked)
}

// appendCommitTrailer appends trailer as a new line to the pending
// commit message file git passes a commit-msg hook, COMMIT_EDITMSG by
// convention at .git/COMMIT_EDITMSG; pohwctl is invoked as a
// prepare-commit-msg or commit-msg hook, which receives the path as
// argv[1] rather than a fixed location, so the caller's first
// non-flag argument is used when present.
func appendCommitTrailer(trailer string) error {
	path := commitMsgPath()
	if path == "" {
		fmt.Println(trailer)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read commit message: %w", err)
	}
	msg := strings.TrimRight(string(data), "\n") + "\n\n" + trailer + "\n"
	return os.WriteFile(path, []byte(msg), 0644)
}

func commitMsgPath() string {
	for _, arg := range os.Args[2:] {
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return ""
}
