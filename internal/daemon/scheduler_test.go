package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/battery"
	"github.com/iodevs-net/git-gov/internal/causality"
	"github.com/iodevs-net/git-gov/internal/config"
	"github.com/iodevs-net/git-gov/internal/entropy"
	"github.com/iodevs-net/git-gov/internal/kinematic"
	"github.com/iodevs-net/git-gov/internal/telemetry"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.DefaultConfig()
	bat := battery.New(battery.DefaultConfig(), nil)
	t.Cleanup(bat.Stop)
	return &Daemon{
		cfg:       cfg,
		engine:    entropy.New(cfg.Entropy.MinSamples),
		bat:       bat,
		qualifier: telemetry.NewQualifier(nil),
	}
}

func syntheticSamples(n int, source kinematic.SourceKind) []kinematic.Sample {
	t0 := time.Now()
	samples := make([]kinematic.Sample, n)
	for i := range samples {
		samples[i] = kinematic.Sample{
			T:      t0.Add(time.Duration(i) * 10 * time.Millisecond),
			Source: source,
			X:      float64(i),
			Y:      float64(i % 7),
		}
	}
	return samples
}

func TestAnalyzeTickBelowMinSamplesIsDegenerate(t *testing.T) {
	d := testDaemon(t)
	start, end := time.Now(), time.Now().Add(time.Second)

	samples := syntheticSamples(10, kinematic.SourcePointer)
	m := d.analyzeTick(samples, start, end)

	assert.True(t, m.IsDegenerate)
	assert.Equal(t, 10, m.SampleCount)
	assert.Zero(t, m.CNS)
}

func TestAnalyzeTickAtMinSamplesIsNotDegenerate(t *testing.T) {
	d := testDaemon(t)
	start, end := time.Now(), time.Now().Add(time.Second)

	samples := syntheticSamples(d.cfg.Entropy.MinSamples, kinematic.SourcePointer)
	m := d.analyzeTick(samples, start, end)

	assert.False(t, m.IsDegenerate)
	assert.Equal(t, d.cfg.Entropy.MinSamples, m.SampleCount)
}

func TestAnalyzeTickEmptyIsDegenerate(t *testing.T) {
	d := testDaemon(t)
	start, end := time.Now(), time.Now().Add(time.Second)

	m := d.analyzeTick(nil, start, end)
	assert.True(t, m.IsDegenerate)
	assert.Zero(t, m.SampleCount)
}

func TestChargeBatteryDoesNotChargeOnDegenerateTick(t *testing.T) {
	d := testDaemon(t)
	ctx := context.Background()

	before, err := d.bat.Snapshot(ctx)
	require.NoError(t, err)

	m := entropy.Metrics{IsDegenerate: true, CNS: 90}
	d.chargeBattery(ctx, m, causality.StateOK, 100, 10, time.Second)

	after, err := d.bat.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Credits, after.Credits)
}
