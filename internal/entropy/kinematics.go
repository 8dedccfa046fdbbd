package entropy

import (
	"math"

	"github.com/iodevs-net/git-gov/internal/kinematic"
)

// derivative computes successive finite differences of xs against ts,
// returning one fewer value than the input. Used to go position -> velocity
// -> acceleration -> jerk.
func derivative(xs []float64, ts []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		dt := ts[i] - ts[i-1]
		if dt <= 0 {
			dt = 1e-3
		}
		out[i-1] = (xs[i] - xs[i-1]) / dt
	}
	return out
}

// seconds converts a window of samples into a monotonic time axis in
// seconds relative to the first sample.
func seconds(samples []kinematic.Sample) []float64 {
	if len(samples) == 0 {
		return nil
	}
	t0 := samples[0].T
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.T.Sub(t0).Seconds()
	}
	return out
}

// velocityMagnitude returns the 2D speed at each derivative step.
func velocityMagnitude(samples []kinematic.Sample) (speed []float64, ts []float64) {
	if len(samples) < 2 {
		return nil, nil
	}
	t := seconds(samples)
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.X
		ys[i] = s.Y
	}
	vx := derivative(xs, t)
	vy := derivative(ys, t)
	speed = make([]float64, len(vx))
	for i := range vx {
		speed[i] = math.Hypot(vx[i], vy[i])
	}
	return speed, t[1:]
}

// computeLDLJ computes the log dimensionless jerk of a pointer/touch window.
// LDLJ = -ln( (T^3 / A^2) * integral(jerk(t)^2, dt) ), the standard
// smoothness metric from movement-science literature. More negative values
// indicate smoother, more human-like trajectories; values near zero indicate
// a degenerate or mechanically linear/constant-velocity motion, the
// signature of a scripted or bot-driven cursor rather than a real hand.
func computeLDLJ(samples []kinematic.Sample) float64 {
	speed, ts := velocityMagnitude(samples)
	if len(speed) < 4 {
		return 0
	}

	accel := derivative(speed, ts)
	jerk := derivative(accel, ts[1:])
	if len(jerk) < 1 {
		return 0
	}

	duration := ts[len(ts)-1] - ts[0]
	if duration <= 0 {
		return 0
	}

	peak := 0.0
	for _, v := range speed {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return 0
	}

	integral := 0.0
	jerkTs := ts[2:]
	for i := 1; i < len(jerk); i++ {
		dt := jerkTs[i] - jerkTs[i-1]
		if dt <= 0 {
			continue
		}
		integral += 0.5 * (jerk[i]*jerk[i] + jerk[i-1]*jerk[i-1]) * dt
	}

	dlj := (math.Pow(duration, 3) / (peak * peak)) * integral
	if dlj <= 0 {
		return 0
	}
	return -math.Log(dlj)
}
