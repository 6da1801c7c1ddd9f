// Package engine assembles the store, effect interpreter, action
// processor, and scheduler into one simulation with single-writer
// semantics: every mutation flows through a command queue consumed by
// the Run goroutine, so ticks and actions interleave atomically in
// submission order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidegate/simroom/internal/action"
	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/effect"
	"github.com/tidegate/simroom/internal/sched"
	"github.com/tidegate/simroom/internal/state"
)

// ErrClosed is returned for submissions after Close.
var ErrClosed = errors.New("engine: closed")

// TickFunc observes completed ticks with a snapshot of the state the
// tick produced.
type TickFunc func(tick int64, snap state.Snapshot)

// ErrorFunc observes rule, event, and callback failures that the tick
// loop absorbs instead of propagating.
type ErrorFunc func(err error)

// EventFunc observes trigger_event effects.
type EventFunc func(name string)

// MessageFunc observes message effects.
type MessageFunc func(text string)

// EventGate decides, per tick, whether random events are suppressed.
type EventGate func(s *state.Store) bool

// Engine is the façade over one live simulation.
type Engine struct {
	def    *def.Definition
	store  *state.Store
	interp *effect.Interpreter
	proc   *action.Processor
	sched  *sched.Scheduler
	queue  *commandQueue
	log    *slog.Logger
	now    func() time.Time
	gate   EventGate

	closeOnce sync.Once
	closed    chan struct{}

	// callback registries; mu guards registration, invocation happens
	// on the Run goroutine.
	mu         sync.Mutex
	onTick     []TickFunc
	onError    []ErrorFunc
	onEvent    []EventFunc
	onMessage  []MessageFunc
	eventFired map[string]time.Time
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	clock    func() time.Time
	idGen    func() string
	rng      state.RNG
	timestep time.Duration
	maxFrame time.Duration
	gate     EventGate
}

// WithLogger substitutes the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock substitutes the wall clock across the store, action
// processor, and scheduler.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.clock = now }
}

// WithIDGenerator substitutes the player ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *config) { c.idGen = gen }
}

// WithRNG substitutes the randomness source.
func WithRNG(rng state.RNG) Option {
	return func(c *config) { c.rng = rng }
}

// WithTimestep overrides the scheduler's fixed timestep.
func WithTimestep(d time.Duration) Option {
	return func(c *config) { c.timestep = d }
}

// WithMaxFrame overrides the scheduler's per-frame clamp.
func WithMaxFrame(d time.Duration) Option {
	return func(c *config) { c.maxFrame = d }
}

// WithEventGate replaces the predicate that suppresses random events.
// The default gate suppresses them while any entity has a truthy
// emergency_shutdown property.
func WithEventGate(gate EventGate) Option {
	return func(c *config) { c.gate = gate }
}

// New builds an Engine over a parsed definition. The simulation starts
// in the waiting phase; call Start to begin ticking.
func New(d *def.Definition, opts ...Option) *Engine {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	var storeOpts []state.Option
	if cfg.clock != nil {
		storeOpts = append(storeOpts, state.WithClock(cfg.clock))
	}
	if cfg.idGen != nil {
		storeOpts = append(storeOpts, state.WithIDGenerator(cfg.idGen))
	}
	if cfg.rng != nil {
		storeOpts = append(storeOpts, state.WithRNG(cfg.rng))
	}

	e := &Engine{
		def:        d,
		queue:      newCommandQueue(),
		log:        cfg.logger.With("sim", d.Meta.Name),
		closed:     make(chan struct{}),
		eventFired: make(map[string]time.Time),
		now:        time.Now,
	}
	if cfg.clock != nil {
		e.now = cfg.clock
	}
	e.gate = cfg.gate
	if e.gate == nil {
		e.gate = emergencyShutdownGate
	}

	e.store = state.New(d, storeOpts...)
	e.interp = effect.New(e.store, e)

	var procOpts []action.Option
	if cfg.clock != nil {
		procOpts = append(procOpts, action.WithClock(cfg.clock))
	}
	e.proc = action.New(d, e.store, e.interp, procOpts...)

	var schedOpts []sched.Option
	if cfg.timestep > 0 {
		schedOpts = append(schedOpts, sched.WithTimestep(cfg.timestep))
	}
	if cfg.maxFrame > 0 {
		schedOpts = append(schedOpts, sched.WithMaxFrame(cfg.maxFrame))
	}
	e.sched = sched.New(e.enqueueTick, schedOpts...)

	return e
}

// EventTriggered implements effect.Sink.
func (e *Engine) EventTriggered(name string) {
	e.log.Info("event triggered", "event", name)
	e.mu.Lock()
	cbs := append([]EventFunc(nil), e.onEvent...)
	e.mu.Unlock()
	for _, cb := range cbs {
		cb(name)
	}
}

// Message implements effect.Sink.
func (e *Engine) Message(text string) {
	e.log.Info("message", "text", text)
	e.mu.Lock()
	cbs := append([]MessageFunc(nil), e.onMessage...)
	e.mu.Unlock()
	for _, cb := range cbs {
		cb(text)
	}
}

// OnTick registers a tick observer and returns a function that removes
// it. Observers run on the engine goroutine after the tick's rules and
// events; panics are absorbed and reported to error observers.
func (e *Engine) OnTick(cb TickFunc) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = append(e.onTick, cb)
	idx := len(e.onTick) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.onTick[idx] = nil
	}
}

// OnError registers an error observer.
func (e *Engine) OnError(cb ErrorFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = append(e.onError, cb)
}

// OnEvent registers a trigger_event observer.
func (e *Engine) OnEvent(cb EventFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent = append(e.onEvent, cb)
}

// OnMessage registers a message observer.
func (e *Engine) OnMessage(cb MessageFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMessage = append(e.onMessage, cb)
}

func (e *Engine) reportError(err error) {
	e.log.Warn("tick error", "err", err)
	e.mu.Lock()
	cbs := append([]ErrorFunc(nil), e.onError...)
	e.mu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}

// Run consumes the command queue until the context is canceled or the
// engine is closed. All mutations happen on this goroutine.
func (e *Engine) Run(ctx context.Context) error {
	defer e.sched.Stop()
	for {
		for _, cmd := range e.queue.drain() {
			cmd()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.closed:
			// flush whatever arrived before close
			for _, cmd := range e.queue.drain() {
				cmd()
			}
			return nil
		case <-e.queue.signal:
		}
	}
}

// Close shuts the engine down: the scheduler stops and Run returns
// after flushing the queue.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.sched.Stop()
		e.queue.close()
		close(e.closed)
	})
}

// submit runs fn on the engine goroutine and waits for it.
func (e *Engine) submit(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	e.queue.push(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// ProcessAction submits a player action and waits for its result.
// Actions from concurrent callers apply in submission order.
func (e *Engine) ProcessAction(ctx context.Context, playerID, actionName string, params map[string]any) (state.ActionExecution, error) {
	var (
		rec state.ActionExecution
		err error
	)
	if serr := e.submit(ctx, func() {
		rec, err = e.proc.Process(playerID, actionName, params)
	}); serr != nil {
		return state.ActionExecution{}, serr
	}
	return rec, err
}

// enqueueTick is the scheduler's step function.
func (e *Engine) enqueueTick() {
	e.queue.push(e.runTick)
}

// ForceTick runs one tick immediately, regardless of the scheduler.
// The simulation must still be running for the tick to do anything.
func (e *Engine) ForceTick(ctx context.Context) error {
	return e.submit(ctx, e.runTick)
}

// runTick executes one simulation tick on the engine goroutine: the
// counter advances, tick rules fire, random events roll, observers run.
func (e *Engine) runTick() {
	if e.store.Status() != state.StatusRunning {
		return
	}
	tick := e.store.IncrementTick()

	for i, r := range e.def.TickRules() {
		if r.Frequency > 1 && tick%int64(r.Frequency) != 0 {
			continue
		}
		if r.Condition != "" && !e.store.CheckCondition(r.Condition) {
			continue
		}
		if _, err := e.interp.ApplyAll(r.Effects); err != nil {
			e.reportError(fmt.Errorf("tick %d rule %d: %w", tick, i, err))
		}
	}

	if !e.gate(e.store) {
		for _, ev := range e.def.RandomEvents {
			if !e.eventReady(ev) {
				continue
			}
			if !e.store.CheckAllConditions(ev.Conditions) {
				continue
			}
			if e.store.Roll() >= ev.Probability {
				continue
			}
			e.markEventFired(ev.Name)
			e.log.Info("random event", "event", ev.Name, "tick", tick)
			e.store.AddEvent("random_event", ev.Name)
			if _, err := e.interp.ApplyAll(ev.Effects); err != nil {
				e.reportError(fmt.Errorf("tick %d event %q: %w", tick, ev.Name, err))
			}
		}
	}

	e.mu.Lock()
	cbs := append([]TickFunc(nil), e.onTick...)
	e.mu.Unlock()
	live := cbs[:0]
	for _, cb := range cbs {
		if cb != nil {
			live = append(live, cb)
		}
	}
	if len(live) == 0 {
		return
	}
	snap := e.store.Snapshot()
	for _, cb := range live {
		e.safeTickCallback(cb, tick, snap)
	}
}

// safeTickCallback absorbs observer panics so one broken observer
// cannot kill the loop.
func (e *Engine) safeTickCallback(cb TickFunc, tick int64, snap state.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			e.reportError(fmt.Errorf("tick %d observer panic: %v", tick, r))
		}
	}()
	cb(tick, snap)
}

// emergencyShutdownGate is the default EventGate: random events are
// suppressed while any entity has engaged its emergency shutdown.
func emergencyShutdownGate(s *state.Store) bool {
	for _, props := range s.Entities() {
		if truthy(props["emergency_shutdown"]) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t == "true"
	}
	return false
}

// eventReady applies a random event's own cooldown window.
func (e *Engine) eventReady(ev def.RandomEvent) bool {
	if ev.Cooldown <= 0 {
		return true
	}
	e.mu.Lock()
	last, fired := e.eventFired[ev.Name]
	e.mu.Unlock()
	if !fired {
		return true
	}
	return e.now().Sub(last) >= time.Duration(ev.Cooldown)*time.Millisecond
}

func (e *Engine) markEventFired(name string) {
	e.mu.Lock()
	e.eventFired[name] = e.now()
	e.mu.Unlock()
}

// Start transitions to running and launches the scheduler.
func (e *Engine) Start() bool {
	if !e.store.Start() {
		return false
	}
	e.log.Info("simulation started")
	e.sched.Start()
	return true
}

// Pause suspends ticking. Actions still process while paused.
func (e *Engine) Pause() bool {
	if !e.store.Pause() {
		return false
	}
	e.sched.Pause()
	e.log.Info("simulation paused")
	return true
}

// Resume continues a paused simulation without catch-up ticks.
func (e *Engine) Resume() bool {
	if !e.store.Resume() {
		return false
	}
	e.sched.Resume()
	e.log.Info("simulation resumed")
	return true
}

// Finish ends the simulation, recording an optional winner.
func (e *Engine) Finish(winner string) bool {
	if !e.store.Finish(winner) {
		return false
	}
	e.sched.Stop()
	e.log.Info("simulation finished", "winner", winner)
	return true
}

// Reset restores the initial state, dropping players, scores, and
// history, and clears cooldowns.
func (e *Engine) Reset() {
	e.sched.Stop()
	e.store.Reset()
	e.proc.ClearCooldowns()
	e.mu.Lock()
	e.eventFired = make(map[string]time.Time)
	e.mu.Unlock()
	e.log.Info("simulation reset")
}

// AddPlayer registers a participant.
func (e *Engine) AddPlayer(name, role string) (state.Player, bool) {
	return e.store.AddPlayer(name, role)
}

// RemovePlayer drops a participant.
func (e *Engine) RemovePlayer(id string) bool {
	return e.store.RemovePlayer(id)
}

// Definition returns the immutable definition.
func (e *Engine) Definition() *def.Definition { return e.def }

// Store exposes the state store for read access.
func (e *Engine) Store() *state.Store { return e.store }

// Actions exposes the action processor for introspection (cooldowns,
// availability).
func (e *Engine) Actions() *action.Processor { return e.proc }

// Scheduler exposes the tick scheduler.
func (e *Engine) Scheduler() *sched.Scheduler { return e.sched }

// Variable reads one variable.
func (e *Engine) Variable(name string) (float64, bool) {
	return e.store.Variable(name)
}

// EntityProperty reads one entity property.
func (e *Engine) EntityProperty(entity, prop string) (any, bool) {
	return e.store.EntityProperty(entity, prop)
}

// Score reads one player's score.
func (e *Engine) Score(playerID string) float64 {
	return e.store.Score(playerID)
}

// CurrentTick reads the logical tick counter.
func (e *Engine) CurrentTick() int64 { return e.store.Tick() }

// Status reads the lifecycle phase.
func (e *Engine) Status() state.Status { return e.store.Status() }

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() state.Snapshot { return e.store.Snapshot() }
