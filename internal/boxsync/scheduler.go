package boxsync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SchedulerState is the observable state of the polling scheduler.
type SchedulerState int

const (
	// StateDisabled means polling is off. A cycle started before Disable
	// may still be finishing; it will not re-arm.
	StateDisabled SchedulerState = iota

	// StateIdle means polling is on but no timer is armed.
	StateIdle

	// StateScheduled means a timer is armed for the next cycle.
	StateScheduled

	// StateInFlight means a cycle is running.
	StateInFlight
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateInFlight:
		return "in_flight"
	default:
		return "disabled"
	}
}

// CycleFunc runs one polling cycle.
type CycleFunc func(ctx context.Context) error

// Scheduler drives periodic polling cycles with single-flight semantics.
//
// A cycle starts when the armed timer fires. The next timer is armed only
// after the running cycle has settled, so a slow or failing box never causes
// requests to pile up. Whether to re-arm is decided at settle time: disabling
// polling while a cycle runs lets the cycle finish without re-arming.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	cycle    CycleFunc
	interval func() time.Duration
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	enabled  bool
	inFlight bool
	timer    *time.Timer
	abort    context.CancelFunc // cancels the cycle in flight
	gen      uint64             // bumped on every arm/disarm so stale timers can tell
	cycles   uint64
	closed   bool
	settled  *sync.Cond
}

// NewScheduler creates a disabled scheduler.
//
// interval is consulted every time a timer is armed, so interval changes take
// effect from the next cycle.
func NewScheduler(cycle CycleFunc, interval func() time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cycle:    cycle,
		interval: interval,
		logger:   noopLogger{},
		ctx:      ctx,
		cancel:   cancel,
	}
	s.settled = sync.NewCond(&s.mu)
	return s
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Enable turns polling on and arms the first timer.
// It is a no-op when polling is already on.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled || s.closed {
		return
	}
	s.enabled = true
	if !s.inFlight {
		s.armLocked()
	}
	s.logger.Info("polling enabled")
}

// Disable turns polling off and cancels any pending timer.
// A running cycle is allowed to complete.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}
	s.enabled = false
	s.disarmLocked()
	s.logger.Info("polling disabled")
}

// Stop turns polling off, cancels a running cycle and waits for it to
// settle. Unlike Close, polling can be enabled again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasEnabled := s.enabled
	s.enabled = false
	s.disarmLocked()
	abort := s.abort
	s.mu.Unlock()

	if abort != nil {
		abort()
	}
	s.Wait()
	if wasEnabled {
		s.logger.Info("polling stopped")
	}
}

// State returns the current scheduler state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.enabled:
		return StateDisabled
	case s.inFlight:
		return StateInFlight
	case s.timer != nil:
		return StateScheduled
	default:
		return StateIdle
	}
}

// Cycles returns the number of cycles that have settled.
func (s *Scheduler) Cycles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Wait blocks until no cycle is in flight.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	for s.inFlight {
		s.settled.Wait()
	}
	s.mu.Unlock()
}

// Close disables polling, cancels a running cycle and waits for it to settle.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.enabled = false
	s.disarmLocked()
	s.mu.Unlock()

	s.cancel()
	s.Wait()
}

func (s *Scheduler) armLocked() {
	s.disarmLocked()

	gen := s.gen
	s.timer = time.AfterFunc(s.interval(), func() {
		s.fire(gen)
	})
}

func (s *Scheduler) disarmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire runs one cycle if the timer that triggered it is still current.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.enabled || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inFlight = true
	ctx, abort := context.WithCancel(s.ctx)
	s.abort = abort
	s.mu.Unlock()

	err := s.runCycle(ctx)
	abort()

	s.mu.Lock()
	s.inFlight = false
	s.abort = nil
	s.cycles++
	if s.enabled {
		s.armLocked()
	}
	s.settled.Broadcast()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("polling cycle failed", "error", err)
	}
}

// runCycle invokes the cycle, converting a panic into an error so the
// scheduler can never be left stuck in flight.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("polling cycle panic: %v", r)
		}
	}()
	return s.cycle(ctx)
}
