package entropy

import (
	"math"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// computeBurstiness returns the Goh-Barabasi burstiness coefficient
// (sigma-mu)/(sigma+mu) of the inter-event gap distribution for the window.
// It ranges over [-1,1]: -1 is perfectly periodic (a scripted/synthetic
// input generator), 0 is a Poisson process, and values approaching 1 are
// the bursty, long-tailed gap distributions characteristic of real human
// typing and mousing.
func computeBurstiness(samples []kinematic.Sample) float64 {
	if len(samples) < 3 {
		return 0
	}

	gaps := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		gap := samples[i].T.Sub(samples[i-1].T).Seconds()
		if gap < 0 {
			gap = 0
		}
		gaps = append(gaps, gap)
	}

	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))

	variance := 0.0
	for _, g := range gaps {
		d := g - mean
		variance += d * d
	}
	variance /= float64(len(gaps))
	stddev := math.Sqrt(variance)

	if stddev+mean <= 0 {
		return 0
	}
	return (stddev - mean) / (stddev + mean)
}

// rescaleBurstiness maps burstiness from [-1,1] to [0,1] for the
// diagnostic humanScore blend.
func rescaleBurstiness(b float64) float64 {
	return clamp01((b + 1) / 2)
}

// interKeyGaps extracts keyboard inter-key intervals directly from samples
// that already carry InterKeyMs, used when the window's source is
// SourceKeyboard rather than a pointer/touch channel.
func interKeyGaps(samples []kinematic.Sample) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Source == kinematic.SourceKeyboard && s.InterKeyMs > 0 {
			out = append(out, s.InterKeyMs)
		}
	}
	return out
}
