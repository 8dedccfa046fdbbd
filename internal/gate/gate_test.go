package gate

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/battery"
	"github.com/iodevs-net/git-gov/internal/entropy"
)

func chargedBattery(t *testing.T, credits float64) *battery.Battery {
	t.Helper()
	cfg := battery.DefaultConfig()
	cfg.Capacity = 1000
	cfg.ChargeRate = 1000
	b := battery.New(cfg, nil)
	t.Cleanup(b.Stop)

	for i := 0; i < 5 && credits > 0; i++ {
		snap, err := b.Tick(context.Background(), 100)
		require.NoError(t, err)
		if snap.Credits >= credits {
			break
		}
	}
	return b
}

func TestComputeCostEmptyDiffIsZero(t *testing.T) {
	cost := ComputeCost(Diff{}, DefaultCostWeights())
	assert.Equal(t, 0.0, cost.TotalCost)
}

func TestComputeCostScalesWithChurn(t *testing.T) {
	small := ComputeCost(Diff{AddedLines: 2, RemovedLines: 0, AddedBytes: []byte("x")}, DefaultCostWeights())
	large := ComputeCost(Diff{AddedLines: 200, RemovedLines: 50, AddedBytes: []byte("y")}, DefaultCostWeights())
	assert.Greater(t, large.TotalCost, small.TotalCost)
}

func TestInterpolateDifficultyEndpoints(t *testing.T) {
	r := DefaultDifficultyRange()
	assert.Equal(t, r.MinBits, InterpolateDifficulty(100, r))
	assert.Equal(t, r.MaxBits, InterpolateDifficulty(50, r))
	assert.Equal(t, r.MaxBits, InterpolateDifficulty(10, r))
}

func TestSolvePuzzleFindsValidNonce(t *testing.T) {
	header := []byte("test-header")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nonce, err := SolvePuzzle(ctx, header, 8)
	require.NoError(t, err)
	assert.True(t, VerifyPuzzle(header, nonce, 8))
}

func TestSolvePuzzleTimesOut(t *testing.T) {
	header := []byte("test-header")
	ctx, cancel := context.WithTimeout(context.Background(), time.Microsecond)
	defer cancel()

	_, err := SolvePuzzle(ctx, header, 40)
	assert.Error(t, err)
}

func TestEvaluateEmptyDiffAlwaysSucceeds(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	b := chargedBattery(t, 0)

	req := Request{CommitTreeHash: "deadbeef", Diff: Diff{}, Window: entropy.Metrics{CNS: 0}}
	res, err := Evaluate(context.Background(), DefaultConfig(), req, b, priv, pub)
	require.NoError(t, err)
	assert.NoError(t, res.Manifest.Verify())
}

func TestEvaluateInsufficientEnergyLeavesBatteryUnchanged(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	b := chargedBattery(t, 0)

	before, err := b.Snapshot(context.Background())
	require.NoError(t, err)

	req := Request{
		CommitTreeHash: "deadbeef",
		Diff:           Diff{AddedLines: 500, RemovedLines: 500, AddedBytes: []byte("lots of varied new content here")},
		Window:         entropy.Metrics{CNS: 80},
	}
	_, err = Evaluate(context.Background(), DefaultConfig(), req, b, priv, pub)
	require.Error(t, err)

	after, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Credits, after.Credits)
}

func TestEvaluateSucceedsWithChargedBatteryAndHighCNS(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	b := chargedBattery(t, 50)

	cfg := DefaultConfig()
	cfg.Difficulty = DifficultyRange{MinBits: 1, MaxBits: 2}

	req := Request{
		CommitTreeHash: "deadbeef",
		Diff:           Diff{AddedLines: 10, RemovedLines: 2, AddedBytes: []byte("a small varied diff")},
		Window:         entropy.Metrics{CNS: 90},
	}
	res, err := Evaluate(context.Background(), cfg, req, b, priv, pub)
	require.NoError(t, err)
	assert.NoError(t, res.Manifest.Verify())
	assert.NotEmpty(t, res.Trailer)
}
