package breaker

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/freshcart/order-engine/internal/config"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int32

const (
	Closed   State = iota // normal behavior, calls pass through
	Open                  // fail fast, no call attempt until the cooldown passes
	HalfOpen              // bounded number of trial calls allowed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker is a per-target circuit breaker. After Threshold consecutive
// failures in Closed state it opens; while open, Allow fails fast without
// consuming a call attempt. After OpenTimeout one cooldown window elapses and
// up to MaxHalfOpen trial calls are let through: success closes the circuit,
// failure reopens it and restarts the cooldown clock.
//
// State lives in atomics so concurrent callers against a hot target never
// serialize on a lock. Outcomes are reported explicitly via Success/Failure.
type Breaker struct {
	cfg config.Breaker

	state    atomic.Int32
	fails    atomic.Uint32
	openedAt atomic.Int64 // unix nanos of the last transition into Open
	trial    atomic.Int32 // half-open probes handed out this window
}

func New(cfg config.Breaker) *Breaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.MaxHalfOpen <= 0 {
		cfg.MaxHalfOpen = 1
	}
	return &Breaker{cfg: cfg}
}

// Allow reports whether a call may proceed. It returns ErrOpen while the
// circuit is open or when the half-open trial budget is spent. The
// Open -> HalfOpen transition happens here, on the first Allow after the
// cooldown; exactly one caller wins the CAS and resets the trial budget, then
// everyone (winner included) races for trial slots through the same CAS loop.
func (b *Breaker) Allow() error {
	for {
		switch State(b.state.Load()) {
		case Closed:
			return nil

		case Open:
			opened := time.Unix(0, b.openedAt.Load())
			if time.Since(opened) < b.cfg.OpenTimeout {
				return ErrOpen
			}
			if b.state.CompareAndSwap(int32(Open), int32(HalfOpen)) {
				// only the winner resets; a loser observing the stale
				// (higher) trial count is denied, which errs fail-safe.
				b.trial.Store(0)
			}

		case HalfOpen:
			for {
				t := b.trial.Load()
				if t >= b.cfg.MaxHalfOpen {
					return ErrOpen
				}
				if b.trial.CompareAndSwap(t, t+1) {
					return nil
				}
			}
		}
	}
}

// Success resets the consecutive failure count and closes the circuit if a
// half-open probe came back healthy.
func (b *Breaker) Success() {
	b.fails.Store(0)
	b.state.CompareAndSwap(int32(HalfOpen), int32(Closed))
}

// Failure counts one failed call. Reaching the threshold in Closed state or
// any failure in HalfOpen trips the circuit and restarts the cooldown.
func (b *Breaker) Failure() {
	switch State(b.state.Load()) {
	case Closed:
		if b.fails.Add(1) >= b.cfg.Threshold {
			b.open(int32(Closed))
		}
	case HalfOpen:
		b.open(int32(HalfOpen))
	}
}

func (b *Breaker) open(from int32) {
	// openedAt is written before the state flip so that a concurrent Allow
	// observing Open never reads a stale cooldown start.
	b.openedAt.Store(time.Now().UnixNano())
	if b.state.CompareAndSwap(from, int32(Open)) {
		b.fails.Store(0)
	}
}

func (b *Breaker) State() State {
	return State(b.state.Load())
}
