package entropy

import (
	"math"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

const curvatureBins = 16

// triangleCurvature estimates the unsigned curvature at point b given its
// neighbors a and c: four times the area of the triangle they form (the
// shoelace formula) divided by the product of its three side lengths, i.e.
// the Menger curvature, the reciprocal of the circumscribed circle's radius.
// This is a standard discrete curvature estimator for noisy point sequences.
func triangleCurvature(a, b, c kinematic.Sample) float64 {
	area := 0.5 * math.Abs((b.X-a.X)*(c.Y-a.Y)-(c.X-a.X)*(b.Y-a.Y))
	d1 := math.Hypot(b.X-a.X, b.Y-a.Y)
	d2 := math.Hypot(c.X-b.X, c.Y-b.Y)
	d3 := math.Hypot(c.X-a.X, c.Y-a.Y)
	denom := d1 * d2 * d3
	if denom <= 1e-9 {
		return 0
	}
	return 4 * area / denom
}

// computeCurvatureEntropy buckets the per-point curvature of a pointer
// trajectory into a fixed histogram and returns its normalized Shannon
// entropy. Human-drawn curves produce a broad, multi-modal curvature
// histogram; straight-line or spline-interpolated synthetic paths collapse
// into one or two bins.
func computeCurvatureEntropy(samples []kinematic.Sample) float64 {
	if len(samples) < 3 {
		return 0
	}

	curvatures := make([]float64, 0, len(samples)-2)
	maxC := 0.0
	for i := 1; i < len(samples)-1; i++ {
		c := triangleCurvature(samples[i-1], samples[i], samples[i+1])
		curvatures = append(curvatures, c)
		if c > maxC {
			maxC = c
		}
	}
	if maxC <= 0 || len(curvatures) == 0 {
		return 0
	}

	hist := make([]int, curvatureBins)
	for _, c := range curvatures {
		bin := int(c / maxC * float64(curvatureBins-1))
		if bin < 0 {
			bin = 0
		}
		if bin >= curvatureBins {
			bin = curvatureBins - 1
		}
		hist[bin]++
	}

	total := float64(len(curvatures))
	h := 0.0
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		h -= p * math.Log2(p)
	}

	maxH := math.Log2(float64(curvatureBins))
	return clamp01(h / maxH)
}
