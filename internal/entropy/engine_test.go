package entropy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

func syntheticPointerWindow(n int, jitter bool) kinematic.Window {
	samples := make([]kinematic.Sample, n)
	t0 := time.Now()
	for i := 0; i < n; i++ {
		dx := float64(i)
		dy := math.Sin(float64(i) / 3)
		if jitter {
			dy += math.Mod(float64(i)*0.37, 1.0) * 2
		}
		samples[i] = kinematic.Sample{
			T:      t0.Add(time.Duration(i) * 12 * time.Millisecond),
			Source: kinematic.SourcePointer,
			X:      dx,
			Y:      dy,
		}
	}
	return kinematic.Window{
		Source:  kinematic.SourcePointer,
		Start:   samples[0].T,
		End:     samples[n-1].T,
		Samples: samples,
	}
}

func TestAnalyzeEmptyWindowIsZero(t *testing.T) {
	e := New(64)
	m := e.Analyze(kinematic.Window{Source: kinematic.SourcePointer})
	assert.Equal(t, 0, m.SampleCount)
	assert.Zero(t, m.CNS)
	assert.True(t, m.IsDegenerate)
}

func TestAnalyzeBelowMinSamplesIsDegenerate(t *testing.T) {
	e := New(64)
	w := syntheticPointerWindow(10, true)
	m := e.Analyze(w)
	assert.True(t, m.IsDegenerate)
	assert.Equal(t, 10, m.SampleCount)
	assert.Zero(t, m.CNS)
	assert.Zero(t, m.LDLJ)
}

func TestAnalyzeAtMinSamplesIsNotDegenerate(t *testing.T) {
	e := New(64)
	w := syntheticPointerWindow(64, true)
	m := e.Analyze(w)
	assert.False(t, m.IsDegenerate)
}

func TestNewFallsBackToDefaultMinSamples(t *testing.T) {
	e := New(0)
	assert.Equal(t, DefaultMinSamples, e.MinSamples)
}

func TestCNSBoundedZeroToHundred(t *testing.T) {
	e := New(64)
	for _, jitter := range []bool{true, false} {
		w := syntheticPointerWindow(64, jitter)
		m := e.Analyze(w)
		require.GreaterOrEqual(t, m.CNS, 0.0)
		require.LessOrEqual(t, m.CNS, 100.0)
	}
}

func TestJitteredMotionScoresHigherThanPureSine(t *testing.T) {
	e := New(64)
	smooth := e.Analyze(syntheticPointerWindow(96, false))
	jittered := e.Analyze(syntheticPointerWindow(96, true))
	assert.Greater(t, jittered.CurvatureEntropy, smooth.CurvatureEntropy-0.05)
}

func TestBurstinessRangeInvariant(t *testing.T) {
	w := syntheticPointerWindow(40, true)
	b := computeBurstiness(w.Samples)
	assert.GreaterOrEqual(t, b, -1.0)
	assert.LessOrEqual(t, b, 1.0)
}

func TestNCDNormalized(t *testing.T) {
	w := syntheticPointerWindow(50, true)
	n := computeNCD(w.Samples)
	assert.GreaterOrEqual(t, n, 0.0)
	assert.LessOrEqual(t, n, 1.0)
}

func TestDetectSpamOnPerfectlyRegularGaps(t *testing.T) {
	samples := make([]kinematic.Sample, 200)
	t0 := time.Now()
	for i := range samples {
		samples[i] = kinematic.Sample{
			T:      t0.Add(time.Duration(i) * 10 * time.Millisecond),
			Source: kinematic.SourceKeyboard,
		}
	}
	assert.True(t, detectSpam(samples))
}

func TestHumanScoreBounded(t *testing.T) {
	for _, b := range []float64{-1, 0, 1} {
		for _, n := range []float64{0, 0.5, 1} {
			s := humanScore(b, n)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
		}
	}
}
