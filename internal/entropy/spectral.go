package entropy

import (
	"math"
	"math/cmplx"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// dft computes the discrete Fourier transform of a real-valued signal with
// a direct O(n^2) summation. Window sizes handed to the entropy engine are
// bounded (a few hundred samples per analysis tick), so the naive transform
// is cheap enough that pulling in an FFT library would only be justified by
// convenience, not necessity; see DESIGN.md.
func dft(signal []float64) []complex128 {
	n := len(signal)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += complex(signal[t], 0) * cmplx.Exp(complex(0, angle))
		}
		out[k] = sum
	}
	return out
}

// spectralEntropy computes the Shannon entropy of the normalized power
// spectrum of the velocity-magnitude signal derived from the window, then
// rescales it into [0,1] by dividing by log2(n/2), the maximum possible
// entropy for that many spectral bins. Human pointer motion spreads energy
// across a broad low-frequency band; perfectly periodic synthetic motion
// concentrates it into one or two bins and scores low.
func computeSpectralEntropy(samples []kinematic.Sample) float64 {
	speed, _ := velocityMagnitude(samples)
	n := len(speed)
	if n < 8 {
		return 0
	}

	mean := 0.0
	for _, v := range speed {
		mean += v
	}
	mean /= float64(n)
	centered := make([]float64, n)
	for i, v := range speed {
		centered[i] = v - mean
	}

	spectrum := dft(centered)
	bins := n / 2
	if bins < 1 {
		return 0
	}

	power := make([]float64, bins)
	total := 0.0
	for i := 0; i < bins; i++ {
		p := cmplx.Abs(spectrum[i])
		p *= p
		power[i] = p
		total += p
	}
	if total <= 0 {
		return 0
	}

	h := 0.0
	for _, p := range power {
		if p <= 0 {
			continue
		}
		pr := p / total
		h -= pr * math.Log2(pr)
	}

	maxH := math.Log2(float64(bins))
	if maxH <= 0 {
		return 0
	}
	return clamp01(h / maxH)
}
