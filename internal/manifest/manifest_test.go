package manifest

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest(t *testing.T, pub ed25519.PublicKey) *Manifest {
	t.Helper()
	return New(
		"a1b2c3d4e5f60718293a4b5c6d7e8f9001020304",
		1700000000000000000,
		Metrics{LDLJ: 0.6, SpecEntropy: 0.7, CurvEntropy: 0.5, Throughput: 12, NCD: 0.3, Burstiness: 0.4},
		72,
		5.0, 5.0,
		18, 123456,
		pub,
	)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m := sampleManifest(t, pub)
	require.NoError(t, m.Sign(priv))
	assert.NoError(t, m.Verify())
}

func TestVerifyFailsOnTamperedField(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m := sampleManifest(t, pub)
	require.NoError(t, m.Sign(priv))

	m.CreditsDebited = 999
	assert.ErrorIs(t, m.Verify(), ErrBadSignature)
}

func TestCanonicalJSONIsIdempotent(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m := sampleManifest(t, pub)
	require.NoError(t, m.Sign(priv))

	first, err := CanonicalJSON(m)
	require.NoError(t, err)

	reparsed, err := Parse(first)
	require.NoError(t, err)

	second, err := CanonicalJSON(reparsed)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTrailerRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m := sampleManifest(t, pub)
	require.NoError(t, m.Sign(priv))

	trailer, err := EncodeTrailer(m)
	require.NoError(t, err)

	commitMsg := "Add retry logic to the sync loop\n\n" + trailer + "\n"

	value, err := ExtractTrailer(commitMsg)
	require.NoError(t, err)

	parsed, err := DecodeTrailerValue(value)
	require.NoError(t, err)
	assert.NoError(t, parsed.Verify())
	assert.Equal(t, m.CommitTreeHash, parsed.CommitTreeHash)
}

func TestExtractTrailerMissing(t *testing.T) {
	_, err := ExtractTrailer("just a plain commit message\n")
	assert.ErrorIs(t, err, ErrTrailerNotFound)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`{"version":1,"bogus_field":true}`))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestParseRejectsWrongVersion(t *testing.T) {
	_, err := Parse([]byte(`{"version":2,"commit_tree_hash":"deadbeef"}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseAcceptsExtensionFields(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m := sampleManifest(t, pub)
	m.Ext = map[string]json.RawMessage{"ext:zk_mode": json.RawMessage(`"reserved"`)}
	require.NoError(t, m.Sign(priv))

	raw, err := CanonicalJSON(m)
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.NoError(t, parsed.Verify())
	assert.Equal(t, m.CommitTreeHash, parsed.CommitTreeHash)
}
