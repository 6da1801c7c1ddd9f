// Package state holds the live, mutable state of one simulation and
// enforces the write-time guarantees the rest of the engine relies on:
// variable bounds, lazily created entities, and append-only logs,
// events, and action history.
package state

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/expr"
)

// RNG is the randomness the store and engine consume. *rand.Rand
// satisfies it; tests substitute scripted sequences.
type RNG interface {
	Float64() float64
}

// Store holds the mutable state of one simulation behind a RWMutex:
// variables, entities, players, scores, logs, events, and the action
// history. All writes go through methods that enforce the definition's
// bounds; callers never touch the maps directly.
type Store struct {
	mu  sync.RWMutex
	def *def.Definition

	status Status
	tick   int64
	winner string

	vars     map[string]float64
	entities map[string]map[string]any
	players  map[string]*Player
	order    []string // player ids in join order
	// scoresExtra holds score entries for IDs with no player record
	// (departed players, synthetic team IDs).
	scoresExtra map[string]float64
	logs        []LogEntry
	events      []Event
	actions     []ActionExecution

	lastAction   string
	lastActionAt time.Time

	createdAt time.Time
	startedAt *time.Time
	endedAt   *time.Time

	now   func() time.Time
	newID func() string
	rng   RNG
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the wall clock, for deterministic tests and
// replays.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator substitutes the player ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithRNG substitutes the randomness source. Overrides any seed the
// definition declares.
func WithRNG(rng RNG) Option {
	return func(s *Store) { s.rng = rng }
}

// New builds a Store initialized from the definition: declared variable
// values, deep-copied entities, waiting status, and any init_random
// randomization applied. The RNG is seeded from meta.seed when declared,
// so seeded definitions produce reproducible runs.
func New(d *def.Definition, opts ...Option) *Store {
	s := &Store{
		def:      d,
		status:   StatusWaiting,
		vars:     make(map[string]float64, len(d.Vars)),
		entities: make(map[string]map[string]any, len(d.Entities)),
		players:  make(map[string]*Player),
		now:      time.Now,
		newID: func() string {
			id, err := uuid.NewV7()
			if err != nil {
				return uuid.NewString()
			}
			return id.String()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		if d.Meta.Seed != nil {
			s.rng = rand.New(rand.NewSource(*d.Meta.Seed))
		} else {
			s.rng = rand.New(rand.NewSource(s.now().UnixNano()))
		}
	}
	s.createdAt = s.now()
	s.initFromDefinition()
	return s
}

// initFromDefinition loads declared values and applies init_random.
// Callers hold the write lock or own the store exclusively.
func (s *Store) initFromDefinition() {
	for name, v := range s.def.Vars {
		s.vars[name] = v.Value
	}
	for name, props := range s.def.Entities {
		s.entities[name] = copyProps(props)
	}
	if ir := s.def.InitRandom; ir != nil {
		for name, rng := range ir.Vars {
			if _, ok := s.def.Vars[name]; ok {
				s.vars[name] = s.clamp(name, rng.Min+s.rng.Float64()*(rng.Max-rng.Min))
			}
		}
		for name, props := range ir.Entities {
			e := s.entities[name]
			if e == nil {
				e = make(map[string]any, len(props))
				s.entities[name] = e
			}
			for k, v := range props {
				e[k] = v
			}
		}
	}
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// Definition returns the immutable definition this store was built from.
func (s *Store) Definition() *def.Definition { return s.def }

// Roll draws from the store's RNG. The engine uses it for random event
// probability draws so seeded runs stay reproducible.
func (s *Store) Roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// clamp applies the variable's declared bounds. NaN falls back to the
// declared initial value; infinities pin to the nearer bound.
func (s *Store) clamp(name string, v float64) float64 {
	decl := s.def.Vars[name]
	switch {
	case math.IsNaN(v):
		return decl.Value
	case math.IsInf(v, 1):
		return decl.Max
	case math.IsInf(v, -1):
		return decl.Min
	case v < decl.Min:
		return decl.Min
	case v > decl.Max:
		return decl.Max
	}
	return v
}

// Variable returns the current value of a declared variable.
func (s *Store) Variable(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Variables returns a copy of all variable values.
func (s *Store) Variables() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// SetVariable writes a declared variable, clamping to its bounds.
// Writes to undeclared names are ignored and report false.
func (s *Store) SetVariable(name string, v float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vars[name]; !ok {
		return false
	}
	s.vars[name] = s.clamp(name, v)
	return true
}

// ModifyVariable applies an arithmetic operation to a declared variable
// and clamps the result. Division by zero leaves the value unchanged.
func (s *Store) ModifyVariable(name string, op def.Op, operand float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.vars[name]
	if !ok {
		return false
	}
	var next float64
	switch op {
	case def.OpAdd:
		next = cur + operand
	case def.OpSubtract:
		next = cur - operand
	case def.OpMultiply:
		next = cur * operand
	case def.OpDivide:
		if operand == 0 {
			return true
		}
		next = cur / operand
	default:
		return true
	}
	s.vars[name] = s.clamp(name, next)
	return true
}

// Entity returns a copy of an entity's properties.
func (s *Store) Entity(name string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	if !ok {
		return nil, false
	}
	return copyProps(e), true
}

// EntityProperty returns one property of an entity.
func (s *Store) EntityProperty(entity, prop string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entity]
	if !ok {
		return nil, false
	}
	v, ok := e[prop]
	return v, ok
}

// SetEntityProperties merges properties into an entity, creating the
// entity if the definition never declared it.
func (s *Store) SetEntityProperties(name string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entities[name]
	if e == nil {
		e = make(map[string]any, len(props))
		s.entities[name] = e
	}
	for k, v := range props {
		e[k] = v
	}
}

// Entities returns a deep copy of all entities.
func (s *Store) Entities() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.entities))
	for name, props := range s.entities {
		out[name] = copyProps(props)
	}
	return out
}

// AddPlayer registers a participant and returns the stored record.
// When the definition declares maxPlayers, joining past the limit fails.
func (s *Store) AddPlayer(name, role string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max := s.def.Meta.MaxPlayers; max > 0 && len(s.players) >= max {
		return Player{}, false
	}
	now := s.now()
	p := &Player{
		ID:       s.newID(),
		Name:     name,
		Role:     role,
		JoinedAt: now,
		LastSeen: now,
	}
	s.players[p.ID] = p
	s.order = append(s.order, p.ID)
	return clonePlayer(p), true
}

// clonePlayer copies a record so callers cannot alias the stored
// action list.
func clonePlayer(p *Player) Player {
	out := *p
	out.Actions = append([]string(nil), p.Actions...)
	return out
}

// RemovePlayer drops a participant. The score survives so final
// standings include departed players.
func (s *Store) RemovePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	if p.Score != 0 {
		if s.scoresExtra == nil {
			s.scoresExtra = make(map[string]float64)
		}
		s.scoresExtra[id] += p.Score
	}
	delete(s.players, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Player returns a copy of one player record.
func (s *Store) Player(id string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return clonePlayer(p), true
}

// Players returns all players in join order.
func (s *Store) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Player, 0, len(s.players))
	for _, id := range s.order {
		if p, ok := s.players[id]; ok {
			out = append(out, clonePlayer(p))
		}
	}
	return out
}

// TouchPlayer refreshes a player's last-seen time.
func (s *Store) TouchPlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	p.LastSeen = s.now()
	return true
}

// PlayerUpdate carries the optional fields of an UpdatePlayer call.
// Nil fields are left as they are.
type PlayerUpdate struct {
	Name *string
	Role *string
}

// UpdatePlayer applies a partial update to a player record and
// refreshes its last-seen time. Returns the updated copy.
func (s *Store) UpdatePlayer(id string, upd PlayerUpdate) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	p.LastSeen = s.now()
	return clonePlayer(p), true
}

// SetScore overwrites a player's score, the update_score effect
// semantics. Scores of departed or never-registered players are still
// tracked so definitions can score synthetic IDs ("team", "all").
func (s *Store) SetScore(playerID string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[playerID]; ok {
		p.Score = score
		return
	}
	if s.scoresExtra == nil {
		s.scoresExtra = make(map[string]float64)
	}
	s.scoresExtra[playerID] = score
}

// AddScore increments a player's score.
func (s *Store) AddScore(playerID string, points float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[playerID]; ok {
		p.Score += points
		return
	}
	if s.scoresExtra == nil {
		s.scoresExtra = make(map[string]float64)
	}
	s.scoresExtra[playerID] += points
}

// Score returns a player's (or synthetic entry's) score.
func (s *Store) Score(playerID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[playerID]; ok {
		return p.Score
	}
	return s.scoresExtra[playerID]
}

// Scores returns the full scoreboard.
func (s *Store) Scores() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.players)+len(s.scoresExtra))
	for id, p := range s.players {
		out[id] = p.Score
	}
	for id, v := range s.scoresExtra {
		out[id] = v
	}
	return out
}

// AddLog appends a line to the simulation log.
func (s *Store) AddLog(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, LogEntry{Message: message, Tick: s.tick, Timestamp: s.now()})
}

// Logs returns a copy of the simulation log.
func (s *Store) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// AddEvent appends a typed event to the event feed.
func (s *Store) AddEvent(eventType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		Type:      eventType,
		Message:   message,
		Tick:      s.tick,
		Timestamp: s.now(),
	})
}

// Events returns a copy of the event feed.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// RecordAction appends to the action history, successful or not. The
// action name is also appended to the acting player's own list when
// that player still exists, and successful attempts become the state's
// last action.
func (s *Store) RecordAction(rec ActionExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, rec)
	if p, ok := s.players[rec.PlayerID]; ok {
		p.Actions = append(p.Actions, rec.ActionName)
	}
	if rec.Success {
		s.lastAction = rec.ActionName
		s.lastActionAt = rec.Timestamp
	}
}

// ActionHistory returns a copy of the action history in submission
// order.
func (s *Store) ActionHistory() []ActionExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActionExecution, len(s.actions))
	copy(out, s.actions)
	return out
}

// RecentActions returns the newest n history entries, oldest first.
func (s *Store) RecentActions(n int) []ActionExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.actions) == 0 {
		return nil
	}
	if n > len(s.actions) {
		n = len(s.actions)
	}
	out := make([]ActionExecution, n)
	copy(out, s.actions[len(s.actions)-n:])
	return out
}

// PlayerActionHistory returns one player's attempts in submission
// order.
func (s *Store) PlayerActionHistory(playerID string) []ActionExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ActionExecution
	for _, rec := range s.actions {
		if rec.PlayerID == playerID {
			out = append(out, rec)
		}
	}
	return out
}

// LastAction returns the most recent successful action and when it ran.
func (s *Store) LastAction() (string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastAction == "" {
		return "", time.Time{}, false
	}
	return s.lastAction, s.lastActionAt, true
}

// Status returns the lifecycle phase.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Winner returns the winner recorded at finish, if any.
func (s *Store) Winner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.winner
}

// Start transitions waiting -> running. Other phases are unaffected.
func (s *Store) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting {
		return false
	}
	s.status = StatusRunning
	t := s.now()
	s.startedAt = &t
	return true
}

// Pause transitions running -> paused.
func (s *Store) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return false
	}
	s.status = StatusPaused
	return true
}

// Resume transitions paused -> running.
func (s *Store) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return false
	}
	s.status = StatusRunning
	return true
}

// Finish moves to the terminal phase and records the winner. Finishing
// twice keeps the first winner.
func (s *Store) Finish(winner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return false
	}
	s.status = StatusFinished
	s.winner = winner
	t := s.now()
	s.endedAt = &t
	return true
}

// SetStatus applies a definition-supplied status string ("ended" maps
// to finished). Unknown statuses report false.
func (s *Store) SetStatus(raw string) bool {
	status, ok := NormalizeStatus(raw)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	switch status {
	case StatusRunning:
		if s.startedAt == nil {
			t := s.now()
			s.startedAt = &t
		}
	case StatusFinished:
		if s.endedAt == nil {
			t := s.now()
			s.endedAt = &t
		}
	}
	return true
}

// IncrementTick advances the logical tick counter and returns the new
// value.
func (s *Store) IncrementTick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	return s.tick
}

// Tick returns the logical tick counter.
func (s *Store) Tick() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// CheckCondition evaluates a condition string against the current
// variables and entity properties. Conditions that fail to evaluate do
// not hold.
func (s *Store) CheckCondition(condition string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expr.Check(condition, s.lockedSource())
}

// CheckAllConditions reports whether every condition holds.
func (s *Store) CheckAllConditions(conditions []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expr.CheckAll(conditions, s.lockedSource())
}

// CheckAnyConditions reports whether at least one condition holds.
func (s *Store) CheckAnyConditions(conditions []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expr.CheckAny(conditions, s.lockedSource())
}

// EvaluateNumber evaluates an arithmetic expression against the current
// state, for effect values written as expressions.
func (s *Store) EvaluateNumber(expression string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expr.EvaluateNumber(expression, s.lockedSource())
}

// lockedSource resolves names against vars, the tick counter, and
// dotted entity properties. The caller holds at least the read lock.
func (s *Store) lockedSource() expr.Source {
	return expr.SourceFunc(func(name string) (float64, bool) {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
		if name == "tick" {
			return float64(s.tick), true
		}
		if entity, prop, ok := splitDotted(name); ok {
			if e, ok := s.entities[entity]; ok {
				return numericValue(e[prop])
			}
		}
		return 0, false
	})
}

func splitDotted(name string) (entity, prop string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}

// numericValue coerces entity property values for conditions: numbers
// pass through, booleans map to 1/0, everything else is unresolvable.
func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Reset restores the definition's initial state (with init_random
// reapplied). Players, scores, logs, events, and history are all
// discarded; participants rejoin a reset simulation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusWaiting
	s.tick = 0
	s.winner = ""
	s.startedAt = nil
	s.endedAt = nil
	s.vars = make(map[string]float64, len(s.def.Vars))
	s.entities = make(map[string]map[string]any, len(s.def.Entities))
	s.players = make(map[string]*Player)
	s.order = nil
	s.logs = nil
	s.events = nil
	s.actions = nil
	s.scoresExtra = nil
	s.lastAction = ""
	s.lastActionAt = time.Time{}
	s.initFromDefinition()
}

// Snapshot returns a deep copy of the full mutable state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Status:    s.status,
		Tick:      s.tick,
		Vars:      make(map[string]float64, len(s.vars)),
		Entities:  make(map[string]map[string]any, len(s.entities)),
		Players:   make([]Player, 0, len(s.players)),
		Scores:    make(map[string]float64, len(s.players)+len(s.scoresExtra)),
		Logs:      append([]LogEntry(nil), s.logs...),
		Events:    append([]Event(nil), s.events...),
		Actions:   append([]ActionExecution(nil), s.actions...),
		Winner:    s.winner,
		CreatedAt: s.createdAt,
	}
	for k, v := range s.vars {
		snap.Vars[k] = v
	}
	for name, props := range s.entities {
		snap.Entities[name] = copyProps(props)
	}
	for _, id := range s.order {
		if p, ok := s.players[id]; ok {
			snap.Players = append(snap.Players, clonePlayer(p))
			snap.Scores[id] = p.Score
		}
	}
	for id, v := range s.scoresExtra {
		snap.Scores[id] = v
	}
	if s.lastAction != "" {
		snap.LastAction = s.lastAction
		t := s.lastActionAt
		snap.LastActionAt = &t
	}
	if s.startedAt != nil {
		t := *s.startedAt
		snap.StartedAt = &t
	}
	if s.endedAt != nil {
		t := *s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

// Summarize returns the lightweight listing view.
func (s *Store) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		Name:    s.def.Meta.Name,
		Status:  s.status,
		Tick:    s.tick,
		Players: len(s.players),
		Events:  len(s.events),
	}
}

// sortPlayersByScore is used by standings views.
func sortPlayersByScore(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})
}

// Standings returns players ordered by descending score.
func (s *Store) Standings() []Player {
	players := s.Players()
	sortPlayersByScore(players)
	return players
}
