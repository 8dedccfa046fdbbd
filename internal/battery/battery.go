// Package battery implements the Attention Battery: a thermodynamic
// accounting state machine that converts sustained, causality-verified
// Cognitive Noise Signature into spendable Attention Credits.
//
// All reads and writes of battery state are owned by a single actor
// goroutine; every other part of the daemon talks to it by sending
// commands over a channel and waiting on a reply channel. This mirrors the
// single-writer ownership the daemon runtime imposes everywhere else (one
// thread owns input capture, one thread owns the scheduler) and avoids a
// mutex-guarded struct that every subsystem would otherwise reach into
// directly.
package battery

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// State is one of the five battery states.
type State uint8

const (
	StateEmpty State = iota
	StateCharging
	StateCharged
	StateSaturated
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateCharging:
		return "charging"
	case StateCharged:
		return "charged"
	case StateSaturated:
		return "saturated"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ErrInsufficientEnergy is returned by Debit when the battery does not
// hold enough credits to cover a requested cost.
var ErrInsufficientEnergy = errors.New("battery: insufficient attention credits")

// Snapshot is a point-in-time, read-only view of battery state, safe to
// copy and hand to callers outside the actor.
type Snapshot struct {
	State      State
	Credits    float64
	Capacity   float64
	UpdatedAt  time.Time
	LastCNS    float64
	Degraded   bool
	DegradedAt time.Time
}

// Config controls the battery's charge/discharge dynamics.
type Config struct {
	Capacity float64 // maximum Attention Credits the battery can hold
	// SaturatedThreshold is the fraction of Capacity above which the
	// battery is considered Saturated rather than merely Charged.
	SaturatedThreshold float64
	// MinCNSToCharge is the Cognitive Noise Signature floor below which a
	// tick contributes no charge at all.
	MinCNSToCharge float64
	// DegradeAfter is how long the battery stays in StateDegraded after
	// a causality break, before it is eligible to resume charging.
	DegradeAfter time.Duration
}

// DefaultConfig returns reasonable defaults for Config.
func DefaultConfig() Config {
	return Config{
		Capacity:           120,
		SaturatedThreshold: 0.9,
		MinCNSToCharge:     15,
		DegradeAfter:       2 * time.Minute,
	}
}

type command struct {
	kind  cmdKind
	cns   float64
	dt    float64 // tick duration in seconds, only meaningful for cmdTick
	cost  float64
	reply chan result
}

type cmdKind uint8

const (
	cmdTick cmdKind = iota
	cmdDebit
	cmdRefund
	cmdSnapshot
	cmdBreakCausality
)

type result struct {
	snapshot Snapshot
	err      error
}

// Battery runs the actor goroutine and exposes a channel-based API.
type Battery struct {
	cfg  Config
	cmds chan command

	wg sync.WaitGroup
}

// New creates and starts a Battery actor. Call Stop to shut it down.
func New(cfg Config, restore *Snapshot) *Battery {
	b := &Battery{
		cfg:  cfg,
		cmds: make(chan command),
	}
	b.wg.Add(1)
	go b.run(restore)
	return b
}

// Stop closes the command channel and waits for the actor goroutine to
// exit. A call that sends a command after Stop panics on the closed
// channel.
func (b *Battery) Stop() {
	close(b.cmds)
	b.wg.Wait()
}

func (b *Battery) run(restore *Snapshot) {
	defer b.wg.Done()

	state := Snapshot{
		State:     StateEmpty,
		Capacity:  b.cfg.Capacity,
		UpdatedAt: time.Now(),
	}
	if restore != nil {
		state = *restore
		state.Capacity = b.cfg.Capacity
	}

	for cmd := range b.cmds {
		switch cmd.kind {
		case cmdTick:
			state = b.applyTick(state, cmd.cns, cmd.dt)
			cmd.reply <- result{snapshot: state}
		case cmdDebit:
			snap, err := b.applyDebit(state, cmd.cost)
			if err == nil {
				state = snap
			}
			cmd.reply <- result{snapshot: state, err: err}
		case cmdRefund:
			state = b.applyRefund(state, cmd.cost)
			cmd.reply <- result{snapshot: state}
		case cmdBreakCausality:
			state.State = StateDegraded
			state.Degraded = true
			state.DegradedAt = time.Now()
			state.UpdatedAt = state.DegradedAt
			cmd.reply <- result{snapshot: state}
		case cmdSnapshot:
			cmd.reply <- result{snapshot: state}
		}
	}
}

// applyTick folds one analysis tick's CNS score into the battery using a
// logistic-saturation charge rule: the increment scales with the tick's
// real elapsed duration dt (in seconds) so a daemon configured with a
// longer or shorter analysis tick charges at the same underlying rate, and
// shrinks as the battery approaches capacity so the last few credits are
// the hardest to earn.
func (b *Battery) applyTick(s Snapshot, cns, dt float64) Snapshot {
	now := time.Now()
	s.LastCNS = cns
	s.UpdatedAt = now

	if s.Degraded {
		if now.Sub(s.DegradedAt) < b.cfg.DegradeAfter {
			return s
		}
		s.Degraded = false
	}

	if cns >= b.cfg.MinCNSToCharge && dt > 0 {
		fill := s.Credits / s.Capacity
		increment := dt * (cns / 100) * (1 - fill)
		if increment < 0 {
			increment = 0
		}
		s.Credits = math.Min(s.Capacity, s.Credits+increment)
	}

	s.State = classify(s, b.cfg)
	return s
}

func (b *Battery) applyDebit(s Snapshot, cost float64) (Snapshot, error) {
	if cost < 0 {
		cost = 0
	}
	if s.Credits < cost {
		return s, ErrInsufficientEnergy
	}
	s.Credits -= cost
	s.UpdatedAt = time.Now()
	s.State = classify(s, b.cfg)
	return s, nil
}

// applyRefund credits the battery directly, bypassing the logistic charge
// curve. Used only to undo a debit when a commit is refused after the
// fact (puzzle timeout, signing failure), never as a normal charging path.
func (b *Battery) applyRefund(s Snapshot, amount float64) Snapshot {
	if amount < 0 {
		amount = 0
	}
	s.Credits = math.Min(b.cfg.Capacity, s.Credits+amount)
	s.UpdatedAt = time.Now()
	s.State = classify(s, b.cfg)
	return s
}

func classify(s Snapshot, cfg Config) State {
	if s.Degraded {
		return StateDegraded
	}
	switch {
	case s.Credits <= 0:
		return StateEmpty
	case s.Credits >= cfg.Capacity*cfg.SaturatedThreshold:
		return StateSaturated
	default:
		return StateCharging
	}
}

// Tick feeds one analysis window's CNS score into the battery and returns
// the resulting snapshot.
// Tick folds one analysis window's CNS score into the battery. dt is the
// window's real elapsed duration in seconds, the Δt term in the charge
// formula, so charging speed tracks the configured analysis tick interval
// rather than assuming a fixed cadence.
func (b *Battery) Tick(ctx context.Context, cns, dt float64) (Snapshot, error) {
	return b.send(ctx, command{kind: cmdTick, cns: cns, dt: dt})
}

// Debit atomically subtracts cost credits, failing with
// ErrInsufficientEnergy (and no state change) if the balance is too low.
// This atomic debit-then-sign sequencing is what the Commit Gate relies on
// to avoid a race between two concurrent commits spending the same energy.
func (b *Battery) Debit(ctx context.Context, cost float64) (Snapshot, error) {
	return b.send(ctx, command{kind: cmdDebit, cost: cost})
}

// Refund credits the battery directly by amount, used to undo a prior
// Debit when a commit is refused after the debit already happened.
func (b *Battery) Refund(ctx context.Context, amount float64) (Snapshot, error) {
	return b.send(ctx, command{kind: cmdRefund, cost: amount})
}

// BreakCausality forces the battery into StateDegraded, used when the
// causality validator detects spoofed input.
func (b *Battery) BreakCausality(ctx context.Context) (Snapshot, error) {
	return b.send(ctx, command{kind: cmdBreakCausality})
}

// Snapshot returns the current state without mutating it.
func (b *Battery) Snapshot(ctx context.Context) (Snapshot, error) {
	return b.send(ctx, command{kind: cmdSnapshot})
}

func (b *Battery) send(ctx context.Context, cmd command) (Snapshot, error) {
	cmd.reply = make(chan result, 1)
	select {
	case b.cmds <- cmd:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.snapshot, r.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
