// Package entropy turns a kinematic.Window into the handful of numbers the
// rest of the system reasons about: a Cognitive Noise Signature in [0,100]
// and the component statistics that fed it.
//
// None of these computations retain a reference to the window's samples
// past the call that produced them — only the derived Metrics cross a
// package boundary.
package entropy

import "time"

// Metrics is the full set of statistics computed for one analysis window.
type Metrics struct {
	WindowStart time.Time
	WindowEnd   time.Time
	SampleCount int

	LDLJ             float64 // log dimensionless jerk, smoothness of motion
	SpectralEntropy  float64 // Shannon entropy of the velocity power spectrum, normalized [0,1]
	CurvatureEntropy float64 // Shannon entropy of the path-curvature histogram, normalized [0,1]
	Burstiness       float64 // (sigma-mu)/(sigma+mu) of inter-event gaps, in [-1,1]
	NCD              float64 // normalized compression distance of the raw timing stream, in [0,1]
	Throughput       float64 // samples per second over the window

	HumanScore   float64 // diagnostic blend of burstiness and NCD, in [0,100]
	IsSpam       bool    // true if the window looks like mechanically repetitive input
	IsDegenerate bool    // true if the window had too few samples to score; battery must not charge
	CNS          float64 // the composite Cognitive Noise Signature, in [0,100]
}

// clamp01 restricts x to [0,1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
