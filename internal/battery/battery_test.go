package battery

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTickSeconds mirrors the daemon's default 5s analysis tick, so
// tests exercise the same Δt magnitude production code uses.
const testTickSeconds = 5.0

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Capacity = 100
	cfg.MinCNSToCharge = 10
	cfg.DegradeAfter = 10 * time.Millisecond
	return cfg
}

func TestTickChargesFromEmpty(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	snap, err := b.Tick(context.Background(), 80, testTickSeconds)
	require.NoError(t, err)
	assert.Greater(t, snap.Credits, 0.0)
	assert.Equal(t, StateCharging, snap.State)
}

func TestTickBelowThresholdDoesNotCharge(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	snap, err := b.Tick(context.Background(), 1, testTickSeconds)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Credits)
	assert.Equal(t, StateEmpty, snap.State)
}

func TestZeroTickDurationDoesNotCharge(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	snap, err := b.Tick(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Credits)
}

func TestChargeApproachesButNeverExceedsCapacity(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	var snap Snapshot
	var err error
	for i := 0; i < 500; i++ {
		snap, err = b.Tick(context.Background(), 100, testTickSeconds)
		require.NoError(t, err)
		require.LessOrEqual(t, snap.Credits, snap.Capacity)
	}
	assert.InDelta(t, snap.Capacity, snap.Credits, 1.0)
	assert.Equal(t, StateSaturated, snap.State)
}

func TestDebitInsufficientEnergy(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	_, err := b.Debit(context.Background(), 5)
	assert.ErrorIs(t, err, ErrInsufficientEnergy)
}

func TestDebitSucceedsAfterCharging(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	for i := 0; i < 20; i++ {
		_, err := b.Tick(context.Background(), 100, testTickSeconds)
		require.NoError(t, err)
	}

	before, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	require.Greater(t, before.Credits, 5.0)

	after, err := b.Debit(context.Background(), 5)
	require.NoError(t, err)
	assert.InDelta(t, before.Credits-5, after.Credits, 0.001)
}

func TestBreakCausalitySuspendsCharging(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Stop()

	snap, err := b.BreakCausality(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, snap.State)

	snap, err = b.Tick(context.Background(), 100, testTickSeconds)
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, snap.State)
	assert.Equal(t, 0.0, snap.Credits)

	time.Sleep(20 * time.Millisecond)
	snap, err = b.Tick(context.Background(), 100, testTickSeconds)
	require.NoError(t, err)
	assert.NotEqual(t, StateDegraded, snap.State)
	assert.Greater(t, snap.Credits, 0.0)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battery.bin")

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	want := Snapshot{
		Credits:   42.5,
		UpdatedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, Save(path, want, 777, priv))

	got, err := Load(path, pub)
	require.NoError(t, err)
	assert.Equal(t, want.Credits, got.Snapshot.Credits)
	assert.Equal(t, uint64(777), got.LastHWCounter)
	assert.Equal(t, want.UpdatedAt.Unix(), got.Snapshot.UpdatedAt.Unix())
}

func TestLoadRejectsWrongSigningKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battery.bin")

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.NoError(t, Save(path, Snapshot{Credits: 10}, 0, priv))

	_, err = Load(path, otherPub)
	assert.ErrorIs(t, err, ErrStateCorrupt)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub := priv.Public().(ed25519.PublicKey)
	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"), pub)
	assert.Error(t, err)
}
