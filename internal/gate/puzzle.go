package gate

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/iodevs-net/git-gov/internal/errkind"
)

// DifficultyRange bounds the puzzle difficulty the daemon will ever pose,
// taken from the daemon's configuration (difficulty_min_bits/max_bits).
type DifficultyRange struct {
	MinBits uint8
	MaxBits uint8
}

// DefaultDifficultyRange matches the configuration defaults (10, 22).
func DefaultDifficultyRange() DifficultyRange {
	return DifficultyRange{MinBits: 10, MaxBits: 22}
}

// InterpolateDifficulty linearly maps a CNS score in [50,100] to a
// required leading-zero-bit count in [MinBits,MaxBits], inverted: higher
// CNS (stronger evidence of human attention) buys a cheaper puzzle.
// CNS below 50 is refused by the caller before this is ever invoked,
// except when the battery is explicitly overcharged.
func InterpolateDifficulty(cns uint8, r DifficultyRange) uint8 {
	if cns >= 100 {
		return r.MinBits
	}
	if cns <= 50 {
		return r.MaxBits
	}
	span := float64(r.MaxBits - r.MinBits)
	bits := float64(r.MaxBits) - (float64(cns)-50)*span/50
	return uint8(bits + 0.5)
}

// ErrPuzzleTimeout is returned by SolvePuzzle when no qualifying nonce is
// found within the configured wall-clock budget.
var ErrPuzzleTimeout = errkind.Wrap(errkind.PuzzleTimeout, "nonce search exceeded MAX_PUZZLE_MS")

// SolvePuzzle searches for a nonce such that
// sha256(header || nonce) has at least difficultyBits leading zero bits,
// bounded by the context deadline (callers should derive ctx with
// MAX_PUZZLE_MS). header is typically the candidate manifest's
// canonical-JSON signing bytes with nonce/signature still zeroed.
func SolvePuzzle(ctx context.Context, header []byte, difficultyBits uint8) (uint64, error) {
	if difficultyBits == 0 {
		return 0, nil
	}

	var nonce uint64
	buf := make([]byte, len(header)+8)
	copy(buf, header)

	for {
		binary.BigEndian.PutUint64(buf[len(header):], nonce)
		sum := sha256.Sum256(buf)
		if leadingZeroBits(sum[:]) >= int(difficultyBits) {
			return nonce, nil
		}
		nonce++

		// Check the deadline every few thousand hashes rather than every
		// single one, so ctx.Done() polling doesn't dominate hash throughput.
		if nonce%4096 == 0 {
			select {
			case <-ctx.Done():
				return 0, ErrPuzzleTimeout
			default:
			}
		}
	}
}

// VerifyPuzzle reports whether header||nonce hashes to at least
// difficultyBits leading zero bits, the check the Verifier re-runs on a
// manifest's committed nonce.
func VerifyPuzzle(header []byte, nonce uint64, difficultyBits uint8) bool {
	buf := make([]byte, len(header)+8)
	copy(buf, header)
	binary.BigEndian.PutUint64(buf[len(header):], nonce)
	sum := sha256.Sum256(buf)
	return leadingZeroBits(sum[:]) >= int(difficultyBits)
}

func leadingZeroBits(data []byte) int {
	count := 0
	for _, b := range data {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}
