// Command pohwverify independently checks a commit's Provenance Manifest
// trailer, with no dependency on a running daemon: it re-derives the
// puzzle header, checks the Ed25519 signature, and compares the
// manifest's bound tree hash against the commit's actual tree.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/iodevs-net/git-gov/internal/verify"
)

func main() {
	var (
		format  = flag.String("format", "text", "output format: text|json|markdown|html")
		verbose = flag.Bool("verbose", false, "show untruncated hashes")
	)
	flag.Parse()

	rev := "HEAD"
	if flag.NArg() > 0 {
		rev = flag.Arg(0)
	}

	os.Exit(run(rev, *format, *verbose))
}

func run(rev, format string, verbose bool) int {
	commitMessage, err := gitCommitMessage(rev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwverify: %v\n", err)
		return 2
	}
	treeHash, err := gitTreeHash(rev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pohwverify: %v\n", err)
		return 2
	}

	start := time.Now()
	result := verify.VerifyCommitMessage(commitMessage, treeHash)
	duration := time.Since(start)

	report := verify.NewReport(result, time.Now(), duration)
	gen := verify.NewReportGenerator(verify.ReportFormat(format)).WithVerbose(verbose)
	if err := gen.Generate(report, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pohwverify: render report: %v\n", err)
		return 2
	}

	if result.Verdict != verify.Valid {
		return 1
	}
	return 0
}

func gitCommitMessage(rev string) (string, error) {
	out, err := exec.Command("git", "log", "-1", "--format=%B", rev).Output()
	if err != nil {
		return "", fmt.Errorf("git log: %w", err)
	}
	return string(out), nil
}

func gitTreeHash(rev string) (string, error) {
	out, err := exec.Command("git", "rev-parse", rev+"^{tree}").Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
