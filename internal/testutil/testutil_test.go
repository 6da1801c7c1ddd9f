package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "clock does not drift")

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, start.Add(50*time.Millisecond), c.Now())

	c.Set(start.Add(time.Hour))
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestSequenceIDs(t *testing.T) {
	gen := SequenceIDs("player")
	assert.Equal(t, "player-1", gen())
	assert.Equal(t, "player-2", gen())
}

func TestScriptedRand(t *testing.T) {
	r := ScriptedRand(0.1, 0.9)
	assert.Equal(t, 0.1, r.Float64())
	assert.Equal(t, 0.9, r.Float64())
	assert.Equal(t, 0.9, r.Float64(), "last draw repeats")

	assert.Equal(t, 0.0, ScriptedRand().Float64())
}
