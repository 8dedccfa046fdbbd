package verify

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/battery"
	"github.com/iodevs-net/git-gov/internal/entropy"
	"github.com/iodevs-net/git-gov/internal/gate"
	"github.com/iodevs-net/git-gov/internal/manifest"
)

// validManifestAndCommit builds a fully signed, puzzle-solved manifest
// via the real commit gate (an empty diff always succeeds regardless of
// battery balance) and the synthetic commit message it would be
// embedded in.
func validManifestAndCommit(t *testing.T, treeHash string) (*manifest.Manifest, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := battery.DefaultConfig()
	b := battery.New(cfg, nil)
	t.Cleanup(b.Stop)

	req := gate.Request{CommitTreeHash: treeHash, Window: entropy.Metrics{CNS: 0}}
	res, err := gate.Evaluate(context.Background(), gate.DefaultConfig(), req, b, priv, pub)
	require.NoError(t, err)

	commitMessage := fmt.Sprintf("fix: adjust retry backoff\n\n%s\n", res.Trailer)
	return res.Manifest, commitMessage
}

func TestVerifyCommitMessageValid(t *testing.T) {
	m, commitMessage := validManifestAndCommit(t, "deadbeef")
	result := VerifyCommitMessage(commitMessage, m.CommitTreeHash)
	assert.Equal(t, Valid, result.Verdict)
	require.NotNil(t, result.Manifest)
	assert.Equal(t, m.CommitTreeHash, result.Manifest.CommitTreeHash)
}

func TestVerifyCommitMessageNoTrailer(t *testing.T) {
	result := VerifyCommitMessage("just a plain commit message\n", "deadbeef")
	assert.Equal(t, SchemaError, result.Verdict)
	assert.Nil(t, result.Manifest)
}

func TestVerifyCommitMessageTreeMismatch(t *testing.T) {
	_, commitMessage := validManifestAndCommit(t, "deadbeef")
	result := VerifyCommitMessage(commitMessage, "somethingelse")
	assert.Equal(t, TreeMismatch, result.Verdict)
}

func TestVerifyManifestBadSignature(t *testing.T) {
	m, _ := validManifestAndCommit(t, "deadbeef")
	clone := *m
	clone.CreditsCharged += 1000 // mutate a signed field without re-signing
	result := VerifyManifest(&clone, clone.CommitTreeHash)
	assert.Equal(t, BadSignature, result.Verdict)
}

func TestVerifyManifestNonceMutationFailsSignature(t *testing.T) {
	m, _ := validManifestAndCommit(t, "deadbeef")
	clone := *m
	clone.Nonce++ // invalidate the puzzle solution; the signature check runs first
	result := VerifyManifest(&clone, clone.CommitTreeHash)
	// Mutating Nonce also breaks the signature, since Nonce is part of
	// the signed payload; a verifier that only wanted to exercise the
	// puzzle check would need a signature-preserving mutation, which
	// does not exist for a sound scheme. BadSignature is the correct,
	// earlier-stage verdict here.
	assert.Equal(t, BadSignature, result.Verdict)
}

func TestVerifyManifestUnsupportedVersion(t *testing.T) {
	m, _ := validManifestAndCommit(t, "deadbeef")
	clone := *m
	clone.Version = 2
	result := VerifyManifest(&clone, clone.CommitTreeHash)
	assert.Equal(t, SchemaError, result.Verdict)
}

func TestReportSummaryValid(t *testing.T) {
	m, commitMessage := validManifestAndCommit(t, "deadbeef")
	result := VerifyCommitMessage(commitMessage, m.CommitTreeHash)
	report := NewReport(result, time.Now(), time.Millisecond)
	assert.Contains(t, report.Summary(), "VALID")
}

func TestReportGenerateJSON(t *testing.T) {
	m, commitMessage := validManifestAndCommit(t, "deadbeef")
	result := VerifyCommitMessage(commitMessage, m.CommitTreeHash)
	report := NewReport(result, time.Now(), time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, NewReportGenerator(FormatJSON).Generate(report, &buf))
	assert.Contains(t, buf.String(), `"verdict"`)
}
