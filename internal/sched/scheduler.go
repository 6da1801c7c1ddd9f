// Package sched drives a fixed-timestep loop: wall time accumulates
// and the step function fires once per elapsed timestep, so tick
// frequency stays stable regardless of how often the loop polls.
package sched

import (
	"sync"
	"time"
)

// Defaults matching the original loop: ~60 steps per second, with a
// single frame clamped so a stall never causes a burst of catch-up
// steps beyond the clamp.
const (
	DefaultTimestep     = 16 * time.Millisecond
	DefaultMaxFrame     = 50 * time.Millisecond
	DefaultPollInterval = 4 * time.Millisecond
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler owns the accumulator and the goroutine that polls it.
// The step function runs on the scheduler's goroutine; callers that
// need single-writer semantics serialize inside it.
type Scheduler struct {
	step         func()
	timestep     time.Duration
	maxFrame     time.Duration
	pollInterval time.Duration
	clock        Clock

	mu          sync.Mutex
	running     bool
	paused      bool
	accumulator time.Duration
	lastTime    time.Time
	stop        chan struct{}
	done        chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimestep overrides the fixed timestep.
func WithTimestep(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timestep = d
		}
	}
}

// WithMaxFrame overrides the per-frame clamp.
func WithMaxFrame(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxFrame = d
		}
	}
}

// WithPollInterval overrides how often the loop samples the clock.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSchedClock substitutes the clock, for deterministic tests.
func WithSchedClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New builds a stopped Scheduler around step.
func New(step func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		step:         step,
		timestep:     DefaultTimestep,
		maxFrame:     DefaultMaxFrame,
		pollInterval: DefaultPollInterval,
		clock:        SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timestep returns the fixed timestep.
func (s *Scheduler) Timestep() time.Duration { return s.timestep }

// Start launches the polling goroutine. Starting a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.paused = false
	s.accumulator = 0
	s.lastTime = s.clock.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

// Stop halts the polling goroutine and waits for it to exit. Stopping
// a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Pause keeps the goroutine alive but stops stepping. Time passing
// while paused is discarded, not accumulated.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume continues stepping from now; the pause gap does not produce
// catch-up steps.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		s.accumulator = 0
		s.lastTime = s.clock.Now()
	}
}

// Running reports whether the polling goroutine is alive.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Paused reports whether stepping is suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Report describes the loop's current configuration and state.
type Report struct {
	Running  bool          `json:"running"`
	Paused   bool          `json:"paused"`
	Timestep time.Duration `json:"timestep"`
	MaxFrame time.Duration `json:"maxFrame"`
	FPS      float64       `json:"fps"`
}

// Status returns a point-in-time report of the loop.
func (s *Scheduler) Status() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Report{
		Running:  s.running,
		Paused:   s.paused,
		Timestep: s.timestep,
		MaxFrame: s.maxFrame,
		FPS:      float64(time.Second) / float64(s.timestep),
	}
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Advance(s.clock.Now())
		}
	}
}

// Reset primes the accumulator so the next Advance measures from now.
// Call before driving the loop manually.
func (s *Scheduler) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accumulator = 0
	s.lastTime = now
}

// Advance feeds the accumulator with the time elapsed since the last
// call and runs the step function once per whole timestep. Exported so
// tests and replays can drive the loop manually.
func (s *Scheduler) Advance(now time.Time) int {
	s.mu.Lock()
	if s.paused {
		s.lastTime = now
		s.mu.Unlock()
		return 0
	}
	frame := now.Sub(s.lastTime)
	s.lastTime = now
	if frame < 0 {
		frame = 0
	}
	if frame > s.maxFrame {
		frame = s.maxFrame
	}
	s.accumulator += frame

	steps := 0
	for s.accumulator >= s.timestep {
		s.accumulator -= s.timestep
		steps++
	}
	s.mu.Unlock()

	// Steps run outside the lock so a step may call back into the
	// scheduler (Pause, Stop) without deadlocking.
	for i := 0; i < steps; i++ {
		s.step()
	}
	return steps
}
