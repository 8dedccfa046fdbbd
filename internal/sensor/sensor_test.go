package sensor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/kinematic"
	"github.com/iodevs-net/git-gov/internal/ring"
)

func TestSourceRunFeedsRingBuffer(t *testing.T) {
	buf := ring.New(64)
	mock := &MockBackend{
		Source:   kinematic.SourcePointer,
		Interval: time.Millisecond,
		Gen: func(tick int) (float64, float64) {
			return math.Sin(float64(tick)), float64(tick)
		},
	}
	src := New(buf, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := src.Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, buf.Len(), 0)
	assert.Greater(t, src.HWCounter(), uint64(0))
}

func TestSourceDrainPreservesOrder(t *testing.T) {
	buf := ring.New(64)
	mock := &MockBackend{Source: kinematic.SourcePointer, Interval: time.Millisecond}
	src := New(buf, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	require.NoError(t, src.Run(ctx))

	drained := buf.Drain(nil)
	for i := 1; i < len(drained); i++ {
		assert.False(t, drained[i].T.Before(drained[i-1].T))
	}
}
