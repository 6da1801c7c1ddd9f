package effect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/state"
	"github.com/tidegate/simroom/internal/testutil"
)

type recordingSink struct {
	events   []string
	messages []string
}

func (s *recordingSink) EventTriggered(name string) { s.events = append(s.events, name) }
func (s *recordingSink) Message(text string)        { s.messages = append(s.messages, text) }

func testStore(t *testing.T) *state.Store {
	t.Helper()
	d, err := def.Parse([]byte(`{
		"meta": {"name": "drill", "version": "1", "description": "d", "author": "a"},
		"vars": {"power": {"value": 50, "min": 0, "max": 100}},
		"entities": {"reactor": {"status": "nominal"}},
		"actions": [],
		"rules": []
	}`))
	require.NoError(t, err)
	return state.New(d,
		state.WithClock(testutil.NewManualClock(time.Unix(1_700_000_000, 0)).Now),
		state.WithIDGenerator(testutil.SequenceIDs("player")),
	)
}

func TestApply_SetVar(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	require.NoError(t, in.Apply(def.SetVar{Target: "power", Value: 75.0}))
	v, _ := s.Variable("power")
	assert.Equal(t, 75.0, v)

	// Out-of-range values clamp.
	require.NoError(t, in.Apply(def.SetVar{Target: "power", Value: 500.0}))
	v, _ = s.Variable("power")
	assert.Equal(t, 100.0, v)

	// A nil value falls back to the declared initial.
	require.NoError(t, in.Apply(def.SetVar{Target: "power", Value: nil}))
	v, _ = s.Variable("power")
	assert.Equal(t, 50.0, v)

	// Unknown variables are silent no-ops.
	require.NoError(t, in.Apply(def.SetVar{Target: "ghost", Value: 1.0}))
}

func TestApply_SetVarExpression(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	require.NoError(t, in.Apply(def.SetVar{Target: "power", Value: "power / 2"}))
	v, _ := s.Variable("power")
	assert.Equal(t, 25.0, v)

	err := in.Apply(def.SetVar{Target: "power", Value: "process.exit()"})
	require.Error(t, err)
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeBadValue, ee.Code)
}

func TestApply_ModifyVar(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	require.NoError(t, in.Apply(def.ModifyVar{Target: "power", Op: def.OpAdd, Value: 30.0}))
	v, _ := s.Variable("power")
	assert.Equal(t, 80.0, v)

	// Division by zero leaves the value unchanged.
	require.NoError(t, in.Apply(def.ModifyVar{Target: "power", Op: def.OpDivide, Value: 0.0}))
	v, _ = s.Variable("power")
	assert.Equal(t, 80.0, v)
}

func TestApply_SetEntity(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	require.NoError(t, in.Apply(def.SetEntity{Target: "valve", Value: map[string]any{"open": true}}))
	open, ok := s.EntityProperty("valve", "open")
	require.True(t, ok)
	assert.Equal(t, true, open)
}

func TestApply_Observability(t *testing.T) {
	s := testStore(t)
	sink := &recordingSink{}
	in := New(s, sink)

	require.NoError(t, in.Apply(def.TriggerEvent{Target: "alarm"}))
	require.NoError(t, in.Apply(def.ShowMessage{Message: "brace"}))

	assert.Equal(t, []string{"alarm"}, sink.events)
	assert.Equal(t, []string{"brace"}, sink.messages)
	assert.Empty(t, s.Events(), "trigger_event does not touch the event feed")
}

func TestApply_UpdateScore(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})
	p, _ := s.AddPlayer("alice", "")

	require.NoError(t, in.Apply(def.UpdateScore{PlayerID: p.ID, Value: 10.0}))
	assert.Equal(t, 10.0, s.Score(p.ID))

	// update_score overwrites, it does not accumulate.
	require.NoError(t, in.Apply(def.UpdateScore{PlayerID: p.ID, Value: 4.0}))
	assert.Equal(t, 4.0, s.Score(p.ID))

	err := in.Apply(def.UpdateScore{PlayerID: p.ID, Value: nil})
	require.Error(t, err)
	assert.True(t, IsEffectError(err))
}

func TestApply_LogAndEvent(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	require.NoError(t, in.Apply(def.AddLog{Message: "scram initiated"}))
	require.NoError(t, in.Apply(def.AddEvent{EventType: "alarm", Message: "loud"}))

	require.Len(t, s.Logs(), 1)
	assert.Equal(t, "scram initiated", s.Logs()[0].Message)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "alarm", s.Events()[0].Type)
}

func TestApply_SetStatus(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	require.NoError(t, in.Apply(def.SetStatus{Status: "running"}))
	assert.Equal(t, state.StatusRunning, s.Status())

	// "ended" is the legacy alias for finished.
	require.NoError(t, in.Apply(def.SetStatus{Status: "ended"}))
	assert.Equal(t, state.StatusFinished, s.Status())
}

func TestApplyAll_StopsAtFirstFailure(t *testing.T) {
	s := testStore(t)
	in := New(s, NopSink{})

	applied, err := in.ApplyAll([]def.Effect{
		def.SetVar{Target: "power", Value: 10.0},
		def.UpdateScore{PlayerID: "p", Value: "not + valid +"},
		def.SetVar{Target: "power", Value: 99.0},
	})
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	// The first effect stayed applied: no rollback.
	v, _ := s.Variable("power")
	assert.Equal(t, 10.0, v)
}
