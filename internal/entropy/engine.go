package entropy

import (
	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// DefaultMinSamples is the sample-count floor below which a window is too
// small to say anything statistically meaningful about, matching
// config.EntropyConfig's own default.
const DefaultMinSamples = 64

// Engine computes Metrics from kinematic windows. It holds no per-window
// state; every call to Analyze is independent, which keeps it safe to call
// from the scheduler thread's analysis tick without additional locking.
type Engine struct {
	// MinSamples is the sample_count floor below which Analyze emits a
	// Degenerate result instead of scoring the window: a handful of
	// stray pointer events crossing a tick boundary carries no signal
	// and must not be allowed to charge the attention battery.
	MinSamples int
}

// New creates an Engine using minSamples as its Degenerate-window floor.
// A non-positive minSamples falls back to DefaultMinSamples.
func New(minSamples int) *Engine {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Engine{MinSamples: minSamples}
}

// Analyze computes the full Metrics set for a window. Pointer and touch
// windows drive the kinematic statistics (LDLJ, spectral/curvature
// entropy); keyboard windows fall back to inter-key timing for burstiness
// and NCD since there are no coordinates to analyze.
//
// A window with fewer than MinSamples samples is Degenerate: every
// derived statistic stays at its zero value and callers must not let it
// charge the attention battery.
func (e *Engine) Analyze(w kinematic.Window) Metrics {
	m := Metrics{
		WindowStart: w.Start,
		WindowEnd:   w.End,
		SampleCount: w.Len(),
	}
	if w.Len() == 0 || w.Len() < e.MinSamples {
		m.IsDegenerate = true
		return m
	}

	switch w.Source {
	case kinematic.SourcePointer, kinematic.SourceTouch:
		m.LDLJ = computeLDLJ(w.Samples)
		m.SpectralEntropy = computeSpectralEntropy(w.Samples)
		m.CurvatureEntropy = computeCurvatureEntropy(w.Samples)
	case kinematic.SourceKeyboard:
		// No trajectory to analyze; smoothness/spectral/curvature terms
		// stay at their zero value and CNS leans on burstiness and NCD.
	}

	m.Burstiness = computeBurstiness(w.Samples)
	m.NCD = computeNCD(w.Samples)
	m.IsSpam = detectSpam(w.Samples)
	m.HumanScore = humanScore(m.Burstiness, m.NCD)
	m.CNS = e.compositeCNS(m, w.Source)

	if d := w.End.Sub(w.Start).Seconds(); d > 0 {
		m.Throughput = float64(w.Len()) / d
	}

	return m
}

// compositeCNS combines burstiness, spectral entropy, and compression
// novelty into a single 0-100 Cognitive Noise Signature: 40 points for
// bursty (non-mechanical) pacing, 35 for spectral richness of the motion,
// 25 for how poorly the raw sample stream compresses (high NCD means the
// input isn't a repeated/scripted pattern). Each term ramps linearly across
// its own human/synthetic boundary rather than contributing in full below
// that boundary.
func (e *Engine) compositeCNS(m Metrics, source kinematic.SourceKind) float64 {
	burst := 40 * clamp01((m.Burstiness-0.1)/0.8)
	spectral := 35 * clamp01(m.SpectralEntropy)
	novelty := 25 * clamp01((m.NCD-0.3)/0.5)

	score := burst + spectral + novelty

	// LDLJ only carries a smoothness signal for pointer/touch trajectories;
	// a keyboard-only window never computes it and stays at its zero value.
	if source == kinematic.SourcePointer || source == kinematic.SourceTouch {
		if m.LDLJ < -10 || m.LDLJ > -2 {
			// Motion smoother or jerkier than the observed human range is
			// as likely to be a macro or a drawing tablet as a real user;
			// halve confidence in the other terms rather than zeroing it.
			score *= 0.5
		}
	}

	if m.IsSpam {
		score *= 0.5
	}

	return clamp01(score/100) * 100
}
