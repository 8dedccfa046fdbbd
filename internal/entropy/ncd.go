package entropy

import (
	"bytes"
	"compress/flate"
	"encoding/binary"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// compressedLen runs data through DEFLATE at the best-compression setting
// and returns the number of bytes the compressed form occupies. No zstd (or
// any other third-party compressor) appears anywhere in the retrieved
// example pack, so NCD falls back to the standard library's compress/flate;
// see DESIGN.md.
func compressedLen(data []byte) int {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return len(data)
	}
	if _, err := w.Write(data); err != nil {
		return len(data)
	}
	if err := w.Close(); err != nil {
		return len(data)
	}
	return buf.Len()
}

// timingBytes serializes only the inter-event gap stream of a window (never
// coordinates, never key identity) into a byte string suitable for
// compression-distance comparison.
func timingBytes(samples []kinematic.Sample) []byte {
	buf := make([]byte, 0, len(samples)*8)
	var prev int64
	for i, s := range samples {
		var gap int64
		if i > 0 {
			gap = s.T.UnixNano() - prev
		}
		prev = s.T.UnixNano()
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(gap))
		buf = append(buf, b[:]...)
	}
	return buf
}

// computeNCD computes the Normalized Compression Distance between the
// first and second halves of a window's timing stream:
//
//	NCD(x,y) = (C(xy) - min(C(x),C(y))) / max(C(x),C(y))
//
// A low NCD means the two halves compress almost as well together as
// separately: the signal is self-similar, which is the signature of
// scripted or replayed input. A high NCD means the halves are more
// structurally distinct, consistent with continuously varying human input.
// The result feeds the CNS novelty term as is, without inversion, so
// self-similar input (low NCD) contributes little to the score.
func computeNCD(samples []kinematic.Sample) float64 {
	if len(samples) < 4 {
		return 0
	}
	mid := len(samples) / 2
	x := timingBytes(samples[:mid])
	y := timingBytes(samples[mid:])
	if len(x) == 0 || len(y) == 0 {
		return 0
	}

	cx := compressedLen(x)
	cy := compressedLen(y)
	cxy := compressedLen(append(append([]byte{}, x...), y...))

	minC := cx
	if cy < minC {
		minC = cy
	}
	maxC := cx
	if cy > maxC {
		maxC = cy
	}
	if maxC == 0 {
		return 0
	}

	ncd := float64(cxy-minC) / float64(maxC)
	return clamp01(ncd)
}

// BlobNCD computes the Normalized Compression Distance between two
// arbitrary byte blobs. The Commit Gate uses this directly on added and
// removed diff bytes as a cheap approximation of novelty vs. churn: two
// blobs that compress almost as well concatenated as they do apart are
// structurally similar (a near-duplicate edit), while dissimilar blobs
// compress noticeably worse together.
func BlobNCD(a, b []byte) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ca := compressedLen(a)
	cb := compressedLen(b)
	cab := compressedLen(append(append([]byte{}, a...), b...))

	minC := ca
	if cb < minC {
		minC = cb
	}
	maxC := ca
	if cb > maxC {
		maxC = cb
	}
	if maxC == 0 {
		return 0
	}

	return clamp01(float64(cab-minC) / float64(maxC))
}

// compressionRatio is the fraction of the original timing stream that
// survives DEFLATE, used by the spam heuristic below.
func compressionRatio(samples []kinematic.Sample) float64 {
	return BlobCompressionRatio(timingBytes(samples))
}

// BlobCompressionRatio is the fraction of data's length that survives
// DEFLATE at best-compression, exported so the Commit Gate can apply the
// same repetitiveness heuristic to diff bytes that the entropy engine
// applies to kinematic timing streams.
func BlobCompressionRatio(data []byte) float64 {
	if len(data) == 0 {
		return 1
	}
	return float64(compressedLen(data)) / float64(len(data))
}

// spamThreshold below which a window's timing stream is considered
// mechanically repetitive: highly compressible input (near-identical gaps
// repeated many times) looks like autogenerated boilerplate rather than
// live human pacing.
const spamThreshold = 0.15

// detectSpam reports whether the window looks like boilerplate / repetitive
// mechanical input based on its compression ratio.
func detectSpam(samples []kinematic.Sample) bool {
	return compressionRatio(samples) < spamThreshold
}

// humanScore blends burstiness and NCD into a diagnostic
// 0-100 score: 70% burstiness, 30% structural distinctiveness. This mirrors
// the weighting used by the predecessor prototype's statistics module and
// is surfaced only on the `metrics` IPC command; it never substitutes for
// CNS in battery charging decisions.
func humanScore(burst, ncd float64) float64 {
	b := rescaleBurstiness(burst)
	n := clamp01(ncd)
	return clamp01(0.7*b+0.3*n) * 100
}
