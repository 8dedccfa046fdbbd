package daemon

import (
	"context"
	"time"

	"github.com/iodevs-net/git-gov/internal/causality"
	"github.com/iodevs-net/git-gov/internal/entropy"
	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// runScheduler is the cooperative heart of the daemon: every tick it
// drains whatever the capture thread pushed since the last tick, folds
// it through the entropy engine and causality validator, and feeds the
// result into the attention battery. It owns the ring buffer's only
// consumer end, per the ring package's single-consumer contract.
func (d *Daemon) runScheduler(ctx context.Context) {
	interval := time.Duration(d.cfg.Entropy.TickMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var drained []kinematic.Sample
	lastHW := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drained = d.buf.Drain(drained)
			now := time.Now()
			metrics := d.analyzeTick(drained, now.Add(-interval), now)

			d.consumed.Add(uint64(len(drained)))
			hw := d.source.HWCounter()
			d.lastHWTotal.Store(hw)

			state := d.valid.Observe(d.consumed.Load(), hw)

			hwDelta := hw - lastHW
			lastHW = hw

			d.mu.Lock()
			d.latest = snapshot{metrics: metrics, causalityState: state}
			d.mu.Unlock()

			d.chargeBattery(ctx, metrics, state, hwDelta, uint64(len(drained)), interval)
		}
	}
}

// analyzeTick partitions a tick's drained samples by source and folds
// each source's Metrics into a single sample-weighted composite, since
// the attention battery and commit gate reason about one CNS per tick
// even when pointer, keyboard, and touch events interleave.
//
// A tick with fewer than the configured MinSamples samples in total is
// Degenerate: too small a snapshot to say anything statistically
// meaningful about, so it's returned as-is without per-source analysis
// and the caller must not charge the battery from it.
func (d *Daemon) analyzeTick(samples []kinematic.Sample, start, end time.Time) entropy.Metrics {
	if len(samples) == 0 {
		return entropy.Metrics{WindowStart: start, WindowEnd: end, IsDegenerate: true}
	}
	if len(samples) < d.engine.MinSamples {
		return entropy.Metrics{WindowStart: start, WindowEnd: end, SampleCount: len(samples), IsDegenerate: true}
	}

	buckets := map[kinematic.SourceKind][]kinematic.Sample{}
	for _, s := range samples {
		buckets[s.Source] = append(buckets[s.Source], s)
	}

	var combined entropy.Metrics
	totalWeight := 0
	for src, bucket := range buckets {
		m := d.engine.Analyze(kinematic.Window{Source: src, Start: start, End: end, Samples: bucket})
		w := m.SampleCount
		if w == 0 || m.IsDegenerate {
			continue
		}
		combined = weightedMerge(combined, totalWeight, m, w)
		totalWeight += w
	}
	combined.WindowStart = start
	combined.WindowEnd = end
	combined.SampleCount = totalWeight
	if totalWeight == 0 {
		combined.IsDegenerate = true
	}
	return combined
}

// weightedMerge folds m (weight w) into acc (prior weight accW) using a
// running weighted average over every numeric statistic.
func weightedMerge(acc entropy.Metrics, accW int, m entropy.Metrics, w int) entropy.Metrics {
	if accW == 0 {
		return m
	}
	total := float64(accW + w)
	blend := func(a, b float64) float64 {
		return (a*float64(accW) + b*float64(w)) / total
	}
	return entropy.Metrics{
		LDLJ:             blend(acc.LDLJ, m.LDLJ),
		SpectralEntropy:  blend(acc.SpectralEntropy, m.SpectralEntropy),
		CurvatureEntropy: blend(acc.CurvatureEntropy, m.CurvatureEntropy),
		Burstiness:       blend(acc.Burstiness, m.Burstiness),
		NCD:              blend(acc.NCD, m.NCD),
		Throughput:       acc.Throughput + m.Throughput,
		HumanScore:       blend(acc.HumanScore, m.HumanScore),
		CNS:              blend(acc.CNS, m.CNS),
		IsSpam:           acc.IsSpam || m.IsSpam,
	}
}

// chargeBattery applies the telemetry qualifier boost, the minimum
// hardware-delta causality guard, and feeds the result into the battery
// actor, degrading it instead of charging when causality has broken.
func (d *Daemon) chargeBattery(ctx context.Context, m entropy.Metrics, state causality.State, hwDelta, sampleDelta uint64, tick time.Duration) {
	if m.IsDegenerate {
		return
	}
	if state == causality.StateBroken {
		_, _ = d.bat.BreakCausality(ctx)
		return
	}
	if sampleDelta > 0 && hwDelta < d.cfg.Sensor.MinHWDelta {
		// Samples arrived but the independent hardware counter barely
		// moved: treat this tick as untrustworthy without declaring the
		// validator itself broken.
		return
	}

	cns := d.qualifier.Boosted(m.CNS)
	_, _ = d.bat.Tick(ctx, cns, tick.Seconds())
}
