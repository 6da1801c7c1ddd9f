package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tidegate/simroom/internal/engine"
	"github.com/tidegate/simroom/internal/state"
	"github.com/tidegate/simroom/internal/testutil"
)

// runEpoch is the fixed start time of every harness run.
var runEpoch = time.Unix(1_700_000_000, 0).UTC()

// Result is the outcome of one scenario run.
type Result struct {
	Scenario *Scenario
	Snapshot state.Snapshot
	// StepErrors holds the error (or nil) of each step, in order.
	StepErrors []error
	// Failures holds human-readable assertion failures; empty means
	// the scenario passed.
	Failures []string
}

// Passed reports whether every assertion held and every step met its
// success expectation.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario deterministically and evaluates its
// assertions.
func Run(sc *Scenario) (*Result, error) {
	d, err := LoadDefinition(sc.Definition)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewManualClock(runEpoch)
	draws := sc.Draws
	if len(draws) == 0 {
		draws = []float64{0.99}
	}

	eng := engine.New(d,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithClock(clock.Now),
		engine.WithIDGenerator(testutil.SequenceIDs("player")),
		engine.WithRNG(testutil.ScriptedRand(draws...)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = eng.Run(ctx)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	res := &Result{Scenario: sc}

	byName := make(map[string]string, len(sc.Players))
	for _, p := range sc.Players {
		joined, ok := eng.AddPlayer(p.Name, p.Role)
		if !ok {
			return nil, fmt.Errorf("harness: player %q rejected (maxPlayers?)", p.Name)
		}
		byName[p.Name] = joined.ID
	}

	eng.Store().Start()

	timestep := eng.Scheduler().Timestep()
	for i, step := range sc.Steps {
		err := runStep(ctx, eng, clock, timestep, byName, step)
		res.StepErrors = append(res.StepErrors, err)
		if step.Action != "" {
			if step.ExpectError && err == nil {
				res.Failures = append(res.Failures,
					fmt.Sprintf("step %d: action %q succeeded, expected an error", i, step.Action))
			}
			if !step.ExpectError && err != nil {
				res.Failures = append(res.Failures,
					fmt.Sprintf("step %d: action %q failed: %v", i, step.Action, err))
			}
		} else if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("step %d: %v", i, err))
		}
	}

	res.Snapshot = eng.Snapshot()
	checkAssertions(res, eng, byName)
	return res, nil
}

func runStep(ctx context.Context, eng *engine.Engine, clock *testutil.ManualClock, timestep time.Duration, byName map[string]string, step Step) error {
	switch {
	case step.Tick > 0:
		for i := 0; i < step.Tick; i++ {
			clock.Advance(timestep)
			if err := eng.ForceTick(ctx); err != nil {
				return err
			}
		}
		return nil

	case step.Action != "":
		id, ok := byName[step.Player]
		if !ok {
			// let the processor reject it so the history records the attempt
			id = step.Player
		}
		_, err := eng.ProcessAction(ctx, id, step.Action, step.Params)
		return err

	case step.Pause:
		if !eng.Pause() {
			return fmt.Errorf("pause refused in status %s", eng.Status())
		}
		return nil

	case step.Resume:
		if !eng.Resume() {
			return fmt.Errorf("resume refused in status %s", eng.Status())
		}
		return nil

	case step.Finish != "":
		winner := step.Finish
		if winner == "-" {
			winner = ""
		}
		if id, ok := byName[winner]; ok {
			winner = id
		}
		if !eng.Finish(winner) {
			return fmt.Errorf("finish refused in status %s", eng.Status())
		}
		return nil

	case step.AdvanceMillis > 0:
		clock.Advance(time.Duration(step.AdvanceMillis) * time.Millisecond)
		return nil
	}
	return fmt.Errorf("empty step")
}

func checkAssertions(res *Result, eng *engine.Engine, byName map[string]string) {
	fail := func(format string, args ...any) {
		res.Failures = append(res.Failures, fmt.Sprintf(format, args...))
	}

	for i, a := range res.Scenario.Asserts {
		switch {
		case a.VarEquals != nil:
			v, ok := eng.Variable(a.VarEquals.Name)
			if !ok {
				fail("assertion %d: no variable %q", i, a.VarEquals.Name)
			} else if v != a.VarEquals.Value {
				fail("assertion %d: %s = %v, want %v", i, a.VarEquals.Name, v, a.VarEquals.Value)
			}

		case a.EntityEquals != nil:
			got, ok := eng.EntityProperty(a.EntityEquals.Entity, a.EntityEquals.Property)
			if !ok {
				fail("assertion %d: no property %s.%s", i, a.EntityEquals.Entity, a.EntityEquals.Property)
			} else if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", a.EntityEquals.Value) {
				fail("assertion %d: %s.%s = %v, want %v",
					i, a.EntityEquals.Entity, a.EntityEquals.Property, got, a.EntityEquals.Value)
			}

		case a.Status != "":
			if string(eng.Status()) != a.Status {
				fail("assertion %d: status %s, want %s", i, eng.Status(), a.Status)
			}

		case a.Score != nil:
			id := a.Score.Player
			if mapped, ok := byName[id]; ok {
				id = mapped
			}
			if got := eng.Score(id); got != a.Score.Value {
				fail("assertion %d: score(%s) = %v, want %v", i, a.Score.Player, got, a.Score.Value)
			}

		case a.HistoryLen != nil:
			if got := len(eng.Store().ActionHistory()); got != *a.HistoryLen {
				fail("assertion %d: history length %d, want %d", i, got, *a.HistoryLen)
			}

		case a.LogContains != "":
			found := false
			for _, entry := range eng.Store().Logs() {
				if strings.Contains(entry.Message, a.LogContains) {
					found = true
					break
				}
			}
			if !found {
				fail("assertion %d: no log line contains %q", i, a.LogContains)
			}

		case a.TickIs != nil:
			if got := eng.CurrentTick(); got != *a.TickIs {
				fail("assertion %d: tick %d, want %d", i, got, *a.TickIs)
			}

		default:
			fail("assertion %d: empty assertion", i)
		}
	}
}

// SnapshotJSON renders the final snapshot as stable indented JSON, the
// form golden files store.
func (r *Result) SnapshotJSON() ([]byte, error) {
	return json.MarshalIndent(r.Snapshot, "", "  ")
}
