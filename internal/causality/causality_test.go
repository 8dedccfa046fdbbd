package causality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveStallTripsBroken(t *testing.T) {
	v := New(Config{StallWindow: 10 * time.Millisecond})
	v.Observe(10, 100)
	time.Sleep(20 * time.Millisecond)
	st := v.Observe(20, 100) // samples grew, HW counter frozen
	assert.Equal(t, StateBroken, st)
}

func TestObserveHealthyMovementIsOK(t *testing.T) {
	v := New(Config{})
	v.Observe(0, 0)
	st := v.Observe(10, 10)
	assert.Equal(t, StateOK, st)
}

func TestObserveNoActivityPreservesState(t *testing.T) {
	v := New(Config{})
	v.Observe(5, 5)
	first := v.Observe(6, 6)
	second := v.Observe(6, 6)
	assert.Equal(t, first, second)
}
