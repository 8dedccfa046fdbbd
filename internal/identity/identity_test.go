package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/tpm"
)

func TestGenerateProducesVerifiableKeypair(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, id.NodeID)

	sig := id.Sign([]byte("hello"))
	assert.True(t, id.Verify([]byte("hello"), sig))
	assert.False(t, id.Verify([]byte("tampered"), sig))
}

func TestDeriveNodeIDIsStableForSameKey(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	a := DeriveNodeID(id.Public)
	b := DeriveNodeID(id.Public)
	assert.Equal(t, a, b)
}

func TestLoadOrCreateGeneratesThenReloads(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "node.key")

	first, err := LoadOrCreate(keyPath)
	require.NoError(t, err)

	second, err := LoadOrCreate(keyPath)
	require.NoError(t, err)

	assert.Equal(t, first.NodeID, second.NodeID)
	assert.Equal(t, first.Public, second.Public)
}

func TestSealUnsealRoundTripWithSoftwareProvider(t *testing.T) {
	provider := tpm.NewSoftwareProvider()
	require.NoError(t, provider.Open())
	defer provider.Close()

	id, err := Generate()
	require.NoError(t, err)

	sealed, err := id.Seal(provider, tpm.DefaultPCRSelection())
	require.NoError(t, err)

	restored, err := Unseal(provider, sealed)
	require.NoError(t, err)
	assert.Equal(t, id.NodeID, restored.NodeID)
	assert.Equal(t, id.Public, restored.Public)
}

func TestSealFailsWithoutTPM(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	_, err = id.Seal(tpm.NoOpProvider{}, tpm.DefaultPCRSelection())
	assert.ErrorIs(t, err, tpm.ErrTPMNotAvailable)
}

func TestLoadOrCreateSealedPersistsAndReloadsThroughProvider(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "node.key")

	provider := tpm.NewSoftwareProvider()
	require.NoError(t, provider.Open())
	defer provider.Close()

	first, err := LoadOrCreateSealed(keyPath, provider, tpm.DefaultPCRSelection())
	require.NoError(t, err)

	raw, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, sealedKeyMagic), "sealed key file should start with the sealed-key magic prefix")

	second, err := LoadOrCreateSealed(keyPath, provider, tpm.DefaultPCRSelection())
	require.NoError(t, err)
	assert.Equal(t, first.NodeID, second.NodeID)
	assert.Equal(t, first.Public, second.Public)
}

func TestLoadOrCreateSealedFallsBackWithoutProvider(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "node.key")

	id, err := LoadOrCreateSealed(keyPath, tpm.NoOpProvider{}, tpm.DefaultPCRSelection())
	require.NoError(t, err)

	raw, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(raw, sealedKeyMagic), "unavailable provider should fall back to a plain key file")

	reloaded, err := LoadOrCreateSealed(keyPath, tpm.NoOpProvider{}, tpm.DefaultPCRSelection())
	require.NoError(t, err)
	assert.Equal(t, id.NodeID, reloaded.NodeID)
}
