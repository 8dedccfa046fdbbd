package ledger

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/manifest"
)

func testManifest(t *testing.T, treeHash string, ts uint64) *manifest.Manifest {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m := manifest.New(treeHash, ts, manifest.Metrics{LDLJ: -4.2, Throughput: 3.1}, 72, 1.5, 1.5, 18, 42, pub)
	require.NoError(t, m.Sign(priv))
	return m
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndClose(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Close())
}

func TestCloseNilStore(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, testManifest(t, "tree1", 100)))
	require.NoError(t, s.Record(ctx, testManifest(t, "tree2", 200)))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tree2", entries[0].CommitTreeHash)
	assert.Equal(t, "tree1", entries[1].CommitTreeHash)
}

func TestRecentRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, testManifest(t, string(rune('a'+i)), uint64(i))))
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGetByTreeHashNotFound(t *testing.T) {
	s := openTestStore(t)
	r, err := s.GetByTreeHash(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestInsertReturnsChainedRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, testManifest(t, "tree1", 100))
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, first.PrevHash)

	second, err := s.Insert(ctx, testManifest(t, "tree2", 200))
	require.NoError(t, err)
	assert.Equal(t, first.RowHash, second.PrevHash)
	assert.NotEqual(t, first.RowHash, second.RowHash)
}

func TestVerifyChainDetectsNoCorruptionOnFreshLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, testManifest(t, string(rune('a'+i)), uint64(i))))
	}

	broken, err := s.VerifyChain(ctx)
	require.NoError(t, err)
	assert.Empty(t, broken)
}

func TestVerifyChainDetectsTamperedRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, testManifest(t, "tree1", 100)))
	require.NoError(t, s.Record(ctx, testManifest(t, "tree2", 200)))

	_, err := s.db.ExecContext(ctx, `UPDATE manifests SET raw_json = ? WHERE commit_tree_hash = ?`, []byte(`{"tampered":true}`), "tree1")
	require.NoError(t, err)

	broken, err := s.VerifyChain(ctx)
	require.NoError(t, err)
	assert.Contains(t, broken, "tree1")
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Record(ctx, testManifest(t, "tree1", 100)))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
