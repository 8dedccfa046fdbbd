// Package gate implements the Commit Gate: the pre-commit arbiter that
// prices a diff, debits the Attention Battery, solves a difficulty-scaled
// proof-of-work puzzle, and signs the resulting Provenance Manifest.
package gate

import (
	"github.com/iodevs-net/git-gov/internal/entropy"
)

// CostWeights are the α/β coefficients in the commit cost formula.
type CostWeights struct {
	Alpha float64 // weight on ncd_cost
	Beta  float64 // weight on line-count churn
}

// DefaultCostWeights matches the reference tuning: α=1.0, β=0.02.
func DefaultCostWeights() CostWeights {
	return CostWeights{Alpha: 1.0, Beta: 0.02}
}

// Cost is the ephemeral commit-cost breakdown for one diff.
type Cost struct {
	AddedLines   uint32
	RemovedLines uint32
	NCDCost      float64
	TotalCost    float64
	Spam         bool
}

// Diff is the minimal description of a pending commit's working-tree
// change the gate needs to price it.
type Diff struct {
	AddedLines   uint32
	RemovedLines uint32
	AddedBytes   []byte
	RemovedBytes []byte
}

// spamCostFloor scales down a diff's NCD cost when the diff itself looks
// like mechanically repetitive boilerplate, using the same compression-
// ratio heuristic the entropy engine uses to flag spammy input windows.
// This supplements the base cost model with a signal the distilled spec
// does not name but the predecessor project's complexity analysis does:
// cheap, auto-generated-looking diffs should not buy a full-price manifest.
const spamCostFloorFactor = 0.25

// ComputeCost prices diff per the commit cost formula:
// total_cost = α·ncd_cost + β·(added+removed/2).
func ComputeCost(diff Diff, weights CostWeights) Cost {
	if diff.AddedLines == 0 && diff.RemovedLines == 0 {
		return Cost{}
	}

	ncdCost := entropy.BlobNCD(diff.AddedBytes, diff.RemovedBytes)
	churn := float64(diff.AddedLines) + float64(diff.RemovedLines)/2

	isSpam := looksLikeSpam(diff)
	if isSpam {
		ncdCost *= spamCostFloorFactor
	}

	total := weights.Alpha*ncdCost + weights.Beta*churn
	return Cost{
		AddedLines:   diff.AddedLines,
		RemovedLines: diff.RemovedLines,
		NCDCost:      ncdCost,
		TotalCost:    total,
		Spam:         isSpam,
	}
}

// spamCompressionThreshold mirrors the entropy engine's spam heuristic
// threshold: diff bytes that compress to less than this fraction of their
// original size look like repetitive, mechanically generated content.
const spamCompressionThreshold = 0.15

// looksLikeSpam flags diffs whose added content compresses away almost
// entirely, the same "ratio < threshold" rule the entropy engine applies
// to kinematic timing streams, applied here to diff bytes.
func looksLikeSpam(diff Diff) bool {
	if len(diff.AddedBytes) < 64 {
		return false
	}
	return entropy.BlobCompressionRatio(diff.AddedBytes) < spamCompressionThreshold
}
