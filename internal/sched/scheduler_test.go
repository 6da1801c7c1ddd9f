package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidegate/simroom/internal/testutil"
)

func TestAdvance_StepsPerTimestep(t *testing.T) {
	var steps atomic.Int64
	s := New(func() { steps.Add(1) })

	start := time.Unix(1_700_000_000, 0)
	s.Reset(start)

	// 16ms elapsed: exactly one step.
	assert.Equal(t, 1, s.Advance(start.Add(16*time.Millisecond)))
	assert.Equal(t, int64(1), steps.Load())

	// 8ms more: accumulates, no step yet.
	assert.Equal(t, 0, s.Advance(start.Add(24*time.Millisecond)))

	// Another 8ms completes the second timestep.
	assert.Equal(t, 1, s.Advance(start.Add(32*time.Millisecond)))
	assert.Equal(t, int64(2), steps.Load())
}

func TestAdvance_FrameClamp(t *testing.T) {
	var steps atomic.Int64
	s := New(func() { steps.Add(1) })

	start := time.Unix(1_700_000_000, 0)
	s.Reset(start)

	// A 5s stall is clamped to 50ms: three 16ms steps, not ~312.
	got := s.Advance(start.Add(5 * time.Second))
	assert.Equal(t, 3, got)
	assert.Equal(t, int64(3), steps.Load())
}

func TestAdvance_BackwardsClockIsIgnored(t *testing.T) {
	var steps atomic.Int64
	s := New(func() { steps.Add(1) })

	start := time.Unix(1_700_000_000, 0)
	s.Reset(start)
	assert.Equal(t, 0, s.Advance(start.Add(-time.Second)))
	assert.Equal(t, int64(0), steps.Load())
}

func TestAdvance_CustomTimestep(t *testing.T) {
	var steps atomic.Int64
	s := New(func() { steps.Add(1) }, WithTimestep(100*time.Millisecond), WithMaxFrame(time.Second))

	start := time.Unix(1_700_000_000, 0)
	s.Reset(start)
	assert.Equal(t, 5, s.Advance(start.Add(500*time.Millisecond)))
}

func TestPauseResume(t *testing.T) {
	var steps atomic.Int64
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	s := New(func() { steps.Add(1) }, WithSchedClock(clock))

	s.Reset(clock.Now())
	s.Pause()
	assert.True(t, s.Paused())

	// Time passing while paused is discarded.
	assert.Equal(t, 0, s.Advance(clock.Advance(10*time.Second)))

	s.Resume()
	assert.False(t, s.Paused())
	// The pause gap produced no catch-up steps.
	assert.Equal(t, 1, s.Advance(clock.Advance(16*time.Millisecond)))
	assert.Equal(t, int64(1), steps.Load())
}

func TestStartStop(t *testing.T) {
	var steps atomic.Int64
	s := New(func() { steps.Add(1) },
		WithTimestep(time.Millisecond),
		WithPollInterval(time.Millisecond),
	)

	s.Start()
	require.True(t, s.Running())
	s.Start() // idempotent

	assert.Eventually(t, func() bool { return steps.Load() > 0 },
		time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // idempotent

	after := steps.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, steps.Load(), "no steps after Stop")
}

func TestStepMayStopScheduler(t *testing.T) {
	var s *Scheduler
	stopped := make(chan struct{})
	s = New(func() {
		go func() {
			s.Stop()
			close(stopped)
		}()
	}, WithTimestep(time.Millisecond), WithPollInterval(time.Millisecond))

	s.Start()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestDefaults(t *testing.T) {
	s := New(func() {})
	assert.Equal(t, DefaultTimestep, s.Timestep())
}

func TestStatusReport(t *testing.T) {
	s := New(func() {}, WithTimestep(20*time.Millisecond))

	r := s.Status()
	assert.False(t, r.Running)
	assert.False(t, r.Paused)
	assert.Equal(t, 20*time.Millisecond, r.Timestep)
	assert.Equal(t, DefaultMaxFrame, r.MaxFrame)
	assert.Equal(t, 50.0, r.FPS)

	s.Start()
	defer s.Stop()
	assert.True(t, s.Status().Running)

	s.Pause()
	assert.True(t, s.Status().Paused)
}
