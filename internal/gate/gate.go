package gate

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/iodevs-net/git-gov/internal/battery"
	"github.com/iodevs-net/git-gov/internal/entropy"
	"github.com/iodevs-net/git-gov/internal/errkind"
	"github.com/iodevs-net/git-gov/internal/manifest"
)

// overchargeFactor is how far above commit_cost the battery balance must
// sit for the gate to waive the CNS ≥ 50 puzzle-difficulty floor. The spec
// leaves "explicitly overcharged" undefined; this build treats it as the
// balance covering at least twice the commit cost, so a genuinely
// low-effort tick still cannot buy a manifest off a single lucky charge.
const overchargeFactor = 2.0

// MaxPuzzleDefault is the default nonce-search wall-clock budget.
const MaxPuzzleDefault = 60 * time.Second

// Config bundles the tunables ComputeCost and the puzzle solver need.
type Config struct {
	Weights    CostWeights
	Difficulty DifficultyRange
	MaxPuzzle  time.Duration
}

// DefaultConfig returns the reference tuning for Config.
func DefaultConfig() Config {
	return Config{
		Weights:    DefaultCostWeights(),
		Difficulty: DefaultDifficultyRange(),
		MaxPuzzle:  MaxPuzzleDefault,
	}
}

// Request is everything the gate needs to evaluate one verify-work call.
type Request struct {
	Diff           Diff
	CommitTreeHash string
	Window         entropy.Metrics
}

// Result is a successful gate outcome: a signed, trailer-ready manifest.
type Result struct {
	Manifest *manifest.Manifest
	Trailer  string
	Cost     Cost
}

// Evaluate runs the full Commit Gate protocol: price the diff, check and
// debit the battery, solve the PoHW puzzle, and sign the manifest. On any
// failure the battery debit (if it happened) is rolled back before
// returning, so a refused commit never leaves the battery short.
func Evaluate(ctx context.Context, cfg Config, req Request, b *battery.Battery, id ed25519.PrivateKey, pub ed25519.PublicKey) (*Result, error) {
	cost := ComputeCost(req.Diff, cfg.Weights)

	if cost.TotalCost == 0 {
		// Empty diff: commit proceeds regardless of balance, and still
		// produces an attestation of a no-op.
		return sign(cfg, req, cost, 0, 0, b, id, pub)
	}

	snapBefore, err := b.Snapshot(ctx)
	if err != nil {
		return nil, errkind.Wrap(errkind.DaemonUnreachable, err.Error())
	}
	if snapBefore.Credits < cost.TotalCost {
		return nil, errkind.Wrap(errkind.InsufficientEnergy,
			fmt.Sprintf("balance %.2f < cost %.2f", snapBefore.Credits, cost.TotalCost))
	}

	cns := uint8(clampCNS(req.Window.CNS))
	overcharged := snapBefore.Credits >= cost.TotalCost*overchargeFactor
	if cns < 50 && !overcharged {
		return nil, errkind.Wrap(errkind.InsufficientEnergy,
			fmt.Sprintf("cns %d below puzzle floor and battery not overcharged", cns))
	}

	debited, err := b.Debit(ctx, cost.TotalCost)
	if err != nil {
		return nil, errkind.Wrap(errkind.InsufficientEnergy, err.Error())
	}

	result, err := sign(cfg, req, cost, cost.TotalCost, debited.Credits, b, id, pub)
	if err != nil {
		// Roll back: refund what we took so a refused commit never leaves
		// the battery short. Best-effort: a refund failure is discarded and
		// only the signing error is returned.
		_, _ = b.Refund(context.Background(), cost.TotalCost)
		return nil, err
	}
	return result, nil
}

func sign(cfg Config, req Request, cost Cost, charged, debited float64, b *battery.Battery, priv ed25519.PrivateKey, pub ed25519.PublicKey) (*Result, error) {
	cns := uint8(clampCNS(req.Window.CNS))
	difficulty := cfg.Difficulty.MinBits
	if cost.TotalCost > 0 {
		difficulty = InterpolateDifficulty(cns, cfg.Difficulty)
	}

	m := manifest.New(
		req.CommitTreeHash,
		uint64(time.Now().UnixNano()),
		manifest.Metrics{
			LDLJ:        req.Window.LDLJ,
			SpecEntropy: req.Window.SpectralEntropy,
			CurvEntropy: req.Window.CurvatureEntropy,
			Throughput:  req.Window.Throughput,
			NCD:         req.Window.NCD,
			Burstiness:  req.Window.Burstiness,
		},
		cns, charged, debited, difficulty, 0, pub,
	)

	puzzleHeader, err := manifest.CanonicalJSON(m)
	if err != nil {
		return nil, errkind.Wrap(errkind.SchemaError, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxPuzzle)
	defer cancel()
	nonce, err := SolvePuzzle(ctx, puzzleHeader, difficulty)
	if err != nil {
		return nil, err
	}
	m.Nonce = nonce

	if err := m.Sign(priv); err != nil {
		return nil, errkind.Wrap(errkind.SchemaError, err.Error())
	}

	trailer, err := manifest.EncodeTrailer(m)
	if err != nil {
		return nil, errkind.Wrap(errkind.SchemaError, err.Error())
	}

	return &Result{Manifest: m, Trailer: trailer, Cost: cost}, nil
}

func clampCNS(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
