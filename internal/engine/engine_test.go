package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/state"
	"github.com/tidegate/simroom/internal/testutil"
)

const drillDefinition = `{
	"meta": {"name": "drill", "version": "1", "description": "d", "author": "a"},
	"vars": {
		"power":       {"value": 50, "min": 0, "max": 100},
		"temperature": {"value": 300, "min": 0, "max": 1000}
	},
	"entities": {"reactor": {"status": "nominal"}},
	"actions": [
		{
			"name": "boost",
			"effects": [{"type": "modify_var", "target": "power", "operation": "add", "value": 5}]
		}
	],
	"rules": [
		{
			"trigger": "tick",
			"effects": [{"type": "modify_var", "target": "temperature", "operation": "add", "value": 1}]
		},
		{
			"trigger": "tick",
			"frequency": 5,
			"effects": [{"type": "modify_var", "target": "power", "operation": "subtract", "value": 1}]
		},
		{
			"trigger": "tick",
			"condition": "temperature > 305",
			"effects": [{"type": "add_log", "message": "overheating"}]
		}
	],
	"random_events": [
		{
			"name": "surge",
			"description": "power surge",
			"probability": 0.5,
			"effects": [{"type": "modify_var", "target": "power", "operation": "add", "value": 20}]
		}
	]
}`

type engineFixture struct {
	t      *testing.T
	eng    *Engine
	clock  *testutil.ManualClock
	cancel context.CancelFunc
	done   chan struct{}
}

func newEngineFixture(t *testing.T, src string, extra ...Option) *engineFixture {
	t.Helper()
	d, err := def.Parse([]byte(src))
	require.NoError(t, err)

	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	opts := append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock.Now),
		WithIDGenerator(testutil.SequenceIDs("player")),
	}, extra...)

	eng := New(d, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()

	f := &engineFixture{t: t, eng: eng, clock: clock, cancel: cancel, done: done}
	t.Cleanup(f.shutdown)
	return f
}

func (f *engineFixture) shutdown() {
	f.cancel()
	<-f.done
}

func (f *engineFixture) tick(n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(f.t, f.eng.ForceTick(context.Background()))
	}
}

func TestForceTick_RunsTickRules(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	require.True(t, f.eng.Store().Start())

	f.tick(1)
	assert.Equal(t, int64(1), f.eng.CurrentTick())
	temp, _ := f.eng.Variable("temperature")
	assert.Equal(t, 301.0, temp)
}

func TestTick_FrequencyRules(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	require.True(t, f.eng.Store().Start())

	f.tick(4)
	power, _ := f.eng.Variable("power")
	assert.Equal(t, 50.0, power, "frequency-5 rule has not fired yet")

	f.tick(1)
	power, _ = f.eng.Variable("power")
	assert.Equal(t, 49.0, power, "fires on tick 5")

	f.tick(5)
	power, _ = f.eng.Variable("power")
	assert.Equal(t, 48.0, power, "fires again on tick 10")
}

func TestTick_ConditionalRules(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	require.True(t, f.eng.Store().Start())

	f.tick(5)
	assert.Empty(t, f.eng.Store().Logs(), "condition not yet met")

	f.tick(1)
	logs := f.eng.Store().Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "overheating", logs[0].Message)
}

func TestTick_NoopUnlessRunning(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))

	f.tick(3)
	assert.Equal(t, int64(0), f.eng.CurrentTick(), "waiting simulations do not tick")

	require.True(t, f.eng.Store().Start())
	f.tick(1)
	require.True(t, f.eng.Store().Pause())
	f.tick(3)
	assert.Equal(t, int64(1), f.eng.CurrentTick(), "paused simulations do not tick")
}

func TestRandomEvents_ProbabilityDraw(t *testing.T) {
	// First draw 0.9 suppresses the event, second draw 0.1 fires it.
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.9, 0.1)))
	require.True(t, f.eng.Store().Start())

	f.tick(1)
	power, _ := f.eng.Variable("power")
	assert.Equal(t, 50.0, power)

	f.tick(1)
	power, _ = f.eng.Variable("power")
	assert.Equal(t, 70.0, power)

	events := f.eng.Store().Events()
	require.Len(t, events, 1)
	assert.Equal(t, "random_event", events[0].Type)
	assert.Equal(t, "surge", events[0].Message)
}

func TestRandomEvents_EmergencyShutdownGate(t *testing.T) {
	// Draw 0.1 would fire the 0.5-probability event, but the gate wins.
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.1)))
	require.True(t, f.eng.Store().Start())
	f.eng.Store().SetEntityProperties("reactor", map[string]any{"emergency_shutdown": true})

	f.tick(3)
	power, _ := f.eng.Variable("power")
	assert.Equal(t, 50.0, power, "no surges while shut down")
	assert.Empty(t, f.eng.Store().Events())
}

func TestRandomEvents_ZeroAndCertainProbability(t *testing.T) {
	src := `{
		"meta": {"name": "p", "version": "1", "description": "d", "author": "a"},
		"vars": {"a": {"value": 0, "min": 0, "max": 100}, "b": {"value": 0, "min": 0, "max": 100}},
		"entities": {},
		"actions": [],
		"rules": [],
		"random_events": [
			{"name": "never", "description": "n", "probability": 0,
			 "effects": [{"type": "modify_var", "target": "a", "operation": "add", "value": 1}]},
			{"name": "always", "description": "a", "probability": 1,
			 "effects": [{"type": "modify_var", "target": "b", "operation": "add", "value": 1}]}
		]
	}`
	// Draws at the extremes of [0, 1).
	f := newEngineFixture(t, src, WithRNG(testutil.ScriptedRand(0.0, 0.999999)))
	require.True(t, f.eng.Store().Start())

	f.tick(2)
	a, _ := f.eng.Variable("a")
	b, _ := f.eng.Variable("b")
	assert.Equal(t, 0.0, a, "probability 0 never fires")
	assert.Equal(t, 2.0, b, "probability 1 always fires")
}

func TestRandomEvents_Cooldown(t *testing.T) {
	src := `{
		"meta": {"name": "p", "version": "1", "description": "d", "author": "a"},
		"vars": {"n": {"value": 0, "min": 0, "max": 100}},
		"entities": {},
		"actions": [],
		"rules": [],
		"random_events": [
			{"name": "burst", "description": "b", "probability": 1, "cooldown": 10000,
			 "effects": [{"type": "modify_var", "target": "n", "operation": "add", "value": 1}]}
		]
	}`
	f := newEngineFixture(t, src, WithRNG(testutil.ScriptedRand(0.0)))
	require.True(t, f.eng.Store().Start())

	f.tick(3)
	n, _ := f.eng.Variable("n")
	assert.Equal(t, 1.0, n, "event cooldown suppresses refires")

	f.clock.Advance(11 * time.Second)
	f.tick(1)
	n, _ = f.eng.Variable("n")
	assert.Equal(t, 2.0, n)
}

func TestProcessAction(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	p, ok := f.eng.AddPlayer("alice", "")
	require.True(t, ok)
	require.True(t, f.eng.Store().Start())

	rec, err := f.eng.ProcessAction(context.Background(), p.ID, "boost", nil)
	require.NoError(t, err)
	assert.True(t, rec.Success)
	power, _ := f.eng.Variable("power")
	assert.Equal(t, 55.0, power)

	// Rejections surface as action errors, not submission errors.
	_, err = f.eng.ProcessAction(context.Background(), p.ID, "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACTION_NOT_FOUND")
}

func TestTickObserversAndPanicIsolation(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))

	var ticks []int64
	var errs []error
	f.eng.OnTick(func(tick int64, _ state.Snapshot) { ticks = append(ticks, tick) })
	f.eng.OnTick(func(int64, state.Snapshot) { panic("broken observer") })
	f.eng.OnError(func(err error) { errs = append(errs, err) })

	require.True(t, f.eng.Store().Start())
	f.tick(2)

	assert.Equal(t, []int64{1, 2}, ticks)
	require.Len(t, errs, 2, "one panic per tick reported")
	assert.Contains(t, errs[0].Error(), "observer panic")
}

func TestEventAndMessageObservers(t *testing.T) {
	src := `{
		"meta": {"name": "p", "version": "1", "description": "d", "author": "a"},
		"vars": {},
		"entities": {},
		"actions": [{
			"name": "ping",
			"effects": [
				{"type": "trigger_event", "target": "sonar"},
				{"type": "message", "message": "contact"}
			]
		}],
		"rules": []
	}`
	f := newEngineFixture(t, src)
	var events, messages []string
	f.eng.OnEvent(func(name string) { events = append(events, name) })
	f.eng.OnMessage(func(text string) { messages = append(messages, text) })

	p, _ := f.eng.AddPlayer("alice", "")
	require.True(t, f.eng.Store().Start())
	_, err := f.eng.ProcessAction(context.Background(), p.ID, "ping", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"sonar"}, events)
	assert.Equal(t, []string{"contact"}, messages)
}

func TestActionsApplyInSubmissionOrder(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	p, _ := f.eng.AddPlayer("alice", "")
	require.True(t, f.eng.Store().Start())

	for i := 0; i < 5; i++ {
		_, err := f.eng.ProcessAction(context.Background(), p.ID, "boost", nil)
		require.NoError(t, err)
	}
	power, _ := f.eng.Variable("power")
	assert.Equal(t, 75.0, power)

	hist := f.eng.Store().ActionHistory()
	require.Len(t, hist, 5)
}

func TestReset(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	f.eng.AddPlayer("alice", "")
	require.True(t, f.eng.Store().Start())
	f.tick(3)

	f.eng.Reset()
	assert.Equal(t, state.StatusWaiting, f.eng.Status())
	assert.Equal(t, int64(0), f.eng.CurrentTick())
	temp, _ := f.eng.Variable("temperature")
	assert.Equal(t, 300.0, temp)
	assert.Empty(t, f.eng.Store().Players())
}

func TestFinishStopsTicking(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))
	require.True(t, f.eng.Store().Start())
	f.tick(1)

	require.True(t, f.eng.Finish("alice"))
	assert.Equal(t, state.StatusFinished, f.eng.Status())
	assert.False(t, f.eng.Finish("bob"))

	f.tick(3)
	assert.Equal(t, int64(1), f.eng.CurrentTick())
}

func TestClose(t *testing.T) {
	d, err := def.Parse([]byte(drillDefinition))
	require.NoError(t, err)
	eng := New(d, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(context.Background())
	}()

	eng.Close()
	<-done

	_, err = eng.ProcessAction(context.Background(), "p", "boost", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduledTicking(t *testing.T) {
	f := newEngineFixture(t, drillDefinition,
		WithRNG(testutil.ScriptedRand(0.99)),
		WithTimestep(time.Millisecond),
	)
	require.True(t, f.eng.Start())

	assert.Eventually(t, func() bool { return f.eng.CurrentTick() > 2 },
		time.Second, 5*time.Millisecond)

	require.True(t, f.eng.Pause())
	after := f.eng.CurrentTick()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, f.eng.CurrentTick())

	require.True(t, f.eng.Resume())
	assert.Eventually(t, func() bool { return f.eng.CurrentTick() > after },
		time.Second, 5*time.Millisecond)
}

func TestRandomEvents_CustomGate(t *testing.T) {
	var suppress bool
	f := newEngineFixture(t, drillDefinition,
		WithRNG(testutil.ScriptedRand(0.1)),
		WithEventGate(func(*state.Store) bool { return suppress }))
	require.True(t, f.eng.Store().Start())

	suppress = true
	f.tick(1)
	power, _ := f.eng.Variable("power")
	assert.Equal(t, 50.0, power, "gate suppresses the surge")

	suppress = false
	f.tick(1)
	power, _ = f.eng.Variable("power")
	assert.Equal(t, 70.0, power)
}

func TestOnTick_Removal(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))

	var ticks []int64
	remove := f.eng.OnTick(func(tick int64, _ state.Snapshot) { ticks = append(ticks, tick) })

	require.True(t, f.eng.Store().Start())
	f.tick(2)
	remove()
	f.tick(2)

	assert.Equal(t, []int64{1, 2}, ticks, "removed observer stops firing")
}

func TestOnTick_ObserverReceivesSnapshot(t *testing.T) {
	f := newEngineFixture(t, drillDefinition, WithRNG(testutil.ScriptedRand(0.99)))

	var snaps []state.Snapshot
	f.eng.OnTick(func(tick int64, snap state.Snapshot) {
		require.Equal(t, tick, snap.Tick)
		snaps = append(snaps, snap)
	})

	require.True(t, f.eng.Store().Start())
	f.tick(2)

	require.Len(t, snaps, 2)
	// Snapshots reflect the state each tick produced.
	assert.Equal(t, 301.0, snaps[0].Vars["temperature"])
	assert.Equal(t, 302.0, snaps[1].Vars["temperature"])
}
