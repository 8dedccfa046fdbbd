// Package verify re-checks a signed Provenance Manifest: its Ed25519
// signature, its PoHW puzzle solution, and its binding to the commit it
// was embedded in. It is a pure function over bytes, with no daemon
// connection and no mutable state.
package verify

import (
	"fmt"

	"github.com/iodevs-net/git-gov/internal/gate"
	"github.com/iodevs-net/git-gov/internal/manifest"
)

// Verdict is the one-of-five outcome VerifyCommitMessage and
// VerifyTrailerValue return.
type Verdict string

const (
	Valid        Verdict = "valid"
	BadSignature Verdict = "bad_signature"
	BadPuzzle    Verdict = "bad_puzzle"
	TreeMismatch Verdict = "tree_mismatch"
	SchemaError  Verdict = "schema_error"
)

// Result is the outcome of checking one manifest.
type Result struct {
	Verdict  Verdict
	Manifest *manifest.Manifest // nil when the trailer could not be extracted or parsed
	Detail   string
}

// VerifyCommitMessage extracts the Pohw-Manifest trailer from
// commitMessage and checks it against the commit's actual tree hash.
func VerifyCommitMessage(commitMessage, actualTreeHash string) Result {
	value, err := manifest.ExtractTrailer(commitMessage)
	if err != nil {
		return Result{Verdict: SchemaError, Detail: err.Error()}
	}
	return VerifyTrailerValue(value, actualTreeHash)
}

// VerifyTrailerValue checks the base64 trailer value directly, without
// scanning a full commit message for it.
func VerifyTrailerValue(value, actualTreeHash string) Result {
	m, err := manifest.DecodeTrailerValue(value)
	if err != nil {
		return Result{Verdict: SchemaError, Detail: err.Error()}
	}
	return VerifyManifest(m, actualTreeHash)
}

// VerifyManifest runs every check a verifier owes an already-parsed
// manifest: signature, puzzle, and tree-hash binding, in that order,
// stopping at the first failure.
func VerifyManifest(m *manifest.Manifest, actualTreeHash string) Result {
	if m.Version != manifest.SchemaVersion {
		return Result{Verdict: SchemaError, Manifest: m,
			Detail: fmt.Sprintf("unsupported schema version %d", m.Version)}
	}

	if err := m.Verify(); err != nil {
		return Result{Verdict: BadSignature, Manifest: m, Detail: err.Error()}
	}

	if !gate.VerifyPuzzle(puzzleHeader(m), m.Nonce, m.DifficultyBits) {
		return Result{Verdict: BadPuzzle, Manifest: m, Detail: "nonce does not satisfy claimed difficulty"}
	}

	if m.CommitTreeHash != actualTreeHash {
		return Result{Verdict: TreeMismatch, Manifest: m,
			Detail: fmt.Sprintf("manifest binds tree %s, commit has tree %s", m.CommitTreeHash, actualTreeHash)}
	}

	return Result{Verdict: Valid, Manifest: m}
}

// puzzleHeader reconstructs the exact bytes the commit gate ran
// gate.SolvePuzzle over: the manifest's canonical JSON with Nonce and
// Signature at their pre-solve, pre-sign zero values.
func puzzleHeader(m *manifest.Manifest) []byte {
	clone := *m
	clone.Nonce = 0
	clone.Signature = ""
	header, err := manifest.CanonicalJSON(&clone)
	if err != nil {
		// CanonicalJSON only fails on values json.Marshal itself cannot
		// encode, which cannot happen for a manifest that already
		// round-tripped through Parse.
		return nil
	}
	return header
}
