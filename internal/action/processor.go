// Package action validates and executes player actions: parameter
// checking, requirement gating, per-player cooldowns, and the audit
// history of every attempt.
package action

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/effect"
	"github.com/tidegate/simroom/internal/expr"
	"github.com/tidegate/simroom/internal/state"
)

// Rejection codes.
const (
	CodeActionNotFound    = "ACTION_NOT_FOUND"
	CodePlayerNotFound    = "PLAYER_NOT_FOUND"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeRequirementNotMet = "REQUIREMENT_NOT_MET"
	CodeEffectFailed      = "EFFECT_FAILED"
)

// Error is a rejected or failed action attempt.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying effect error, if any.
func (e *Error) Unwrap() error { return e.Cause }

// IsActionError reports whether err is (or wraps) an action Error.
func IsActionError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

func actionErr(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Processor executes actions against one store. Safe for concurrent
// use, though the engine funnels all calls through its event loop.
type Processor struct {
	def    *def.Definition
	store  *state.Store
	interp *effect.Interpreter
	now    func() time.Time

	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

type cooldownKey struct {
	playerID string
	action   string
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock substitutes the wall clock used for cooldown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New builds a Processor over the given store and interpreter.
func New(d *def.Definition, store *state.Store, interp *effect.Interpreter, opts ...Option) *Processor {
	p := &Processor{
		def:    d,
		store:  store,
		interp: interp,
		now:    time.Now,
		last:   make(map[cooldownKey]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one action attempt end to end: lookup, parameter
// validation, requirement gating, effect application, cooldown
// stamping. Every attempt, successful or not, lands in the action
// history.
func (p *Processor) Process(playerID, actionName string, params map[string]any) (state.ActionExecution, error) {
	rec := state.ActionExecution{
		ActionName: actionName,
		PlayerID:   playerID,
		Parameters: params,
		Timestamp:  p.now(),
	}

	err := p.process(playerID, actionName, &rec)
	if err != nil {
		rec.Success = false
		rec.Error = err.Error()
	} else {
		rec.Success = true
		rec.Result = "ok"
	}
	p.store.RecordAction(rec)
	return rec, err
}

func (p *Processor) process(playerID, actionName string, rec *state.ActionExecution) error {
	act := p.def.Action(actionName)
	if act == nil {
		return actionErr(CodeActionNotFound, "no action named %q", actionName)
	}
	if _, ok := p.store.Player(playerID); !ok {
		return actionErr(CodePlayerNotFound, "no player %q", playerID)
	}

	params, err := p.resolveParams(act, rec.Parameters)
	if err != nil {
		return err
	}
	rec.Parameters = params

	if err := p.checkRequirements(playerID, act); err != nil {
		return err
	}

	if _, err := p.interp.ApplyAll(act.Effects); err != nil {
		return &Error{Code: CodeEffectFailed, Message: err.Error(), Cause: err}
	}

	p.mu.Lock()
	p.last[cooldownKey{playerID, actionName}] = p.now()
	p.mu.Unlock()
	p.store.TouchPlayer(playerID)
	return nil
}

// resolveParams fills declared defaults and validates types. Unknown
// parameters pass through untouched; definitions own their meaning.
func (p *Processor) resolveParams(act *def.Action, supplied map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(supplied)+len(act.Parameters))
	for k, v := range supplied {
		out[k] = v
	}
	for _, decl := range act.Parameters {
		v, present := out[decl.Name]
		if !present || v == nil {
			if decl.Default != nil {
				out[decl.Name] = decl.Default
				continue
			}
			if decl.Required {
				return nil, actionErr(CodeInvalidParameter, "parameter %q is required", decl.Name)
			}
			continue
		}
		if err := checkParamType(decl, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkParamType(decl def.Parameter, v any) error {
	switch decl.Type {
	case def.ParamNumber:
		if _, ok := v.(float64); !ok {
			if _, ok := v.(int); !ok {
				return actionErr(CodeInvalidParameter, "parameter %q must be a number", decl.Name)
			}
		}
	case def.ParamString:
		if _, ok := v.(string); !ok {
			return actionErr(CodeInvalidParameter, "parameter %q must be a string", decl.Name)
		}
	case def.ParamBoolean:
		if _, ok := v.(bool); !ok {
			return actionErr(CodeInvalidParameter, "parameter %q must be a boolean", decl.Name)
		}
	case def.ParamSelect:
		s, ok := v.(string)
		if !ok {
			return actionErr(CodeInvalidParameter, "parameter %q must be a string", decl.Name)
		}
		for _, opt := range decl.Options {
			if s == opt {
				return nil
			}
		}
		return actionErr(CodeInvalidParameter, "parameter %q must be one of: %s",
			decl.Name, strings.Join(decl.Options, ", "))
	}
	return nil
}

// checkRequirements evaluates requirements in declaration order and
// fails on the first one that does not hold.
func (p *Processor) checkRequirements(playerID string, act *def.Action) error {
	for _, req := range act.Requirements {
		switch r := req.(type) {
		case def.VarRange:
			if err := p.checkVarRange(r); err != nil {
				return err
			}
		case def.EntityState:
			if err := p.checkEntityState(r); err != nil {
				return err
			}
		case def.PlayerRole:
			if err := p.checkPlayerRole(playerID, r); err != nil {
				return err
			}
		case def.Cooldown:
			if err := p.checkCooldown(playerID, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// conditionRe splits a bare comparison like ">= 50" into operator and
// operand.
var conditionRe = regexp.MustCompile(`^([><=!]+)\s*(.+)$`)

func (p *Processor) checkVarRange(r def.VarRange) error {
	v, ok := p.store.Variable(r.Target)
	if !ok {
		return actionErr(CodeRequirementNotMet, "variable %q does not exist", r.Target)
	}
	m := conditionRe.FindStringSubmatch(strings.TrimSpace(r.Condition))
	if m == nil {
		return actionErr(CodeRequirementNotMet, "unparseable condition %q on %q", r.Condition, r.Target)
	}
	cond := expr.FormatNumber(v) + " " + m[1] + " " + m[2]
	if !p.store.CheckCondition(cond) {
		return actionErr(CodeRequirementNotMet, "%s must be %s (currently %s)",
			r.Target, strings.TrimSpace(r.Condition), expr.FormatNumber(v))
	}
	return nil
}

// entityCondRe splits "status == nominal" into property, operator, and
// expected value.
var entityCondRe = regexp.MustCompile(`^(\w+)\s*([><=!]+)\s*(.+)$`)

func (p *Processor) checkEntityState(r def.EntityState) error {
	m := entityCondRe.FindStringSubmatch(strings.TrimSpace(r.Condition))
	if m == nil {
		return actionErr(CodeRequirementNotMet, "unparseable condition %q on entity %q", r.Condition, r.Target)
	}
	prop, op, want := m[1], m[2], strings.TrimSpace(m[3])

	got, ok := p.store.EntityProperty(r.Target, prop)
	if !ok {
		return actionErr(CodeRequirementNotMet, "entity %q has no property %q", r.Target, prop)
	}

	if holds, decided := compareEntity(got, op, want); decided {
		if !holds {
			return actionErr(CodeRequirementNotMet, "%s.%s must be %s %s (currently %v)",
				r.Target, prop, op, want, got)
		}
		return nil
	}
	return actionErr(CodeRequirementNotMet, "cannot compare %s.%s with %q", r.Target, prop, op)
}

// compareEntity compares numerically when both sides parse as numbers,
// falling back to string equality for == and !=.
func compareEntity(got any, op, want string) (holds, decided bool) {
	gotNum, gotOK := toFloat(got)
	wantNum, wantErr := strconv.ParseFloat(want, 64)
	if gotOK && wantErr == nil {
		switch op {
		case ">":
			return gotNum > wantNum, true
		case "<":
			return gotNum < wantNum, true
		case ">=":
			return gotNum >= wantNum, true
		case "<=":
			return gotNum <= wantNum, true
		case "!=":
			return gotNum != wantNum, true
		case "==", "=", "===":
			return gotNum == wantNum, true
		}
		return false, false
	}

	gotStr := strings.TrimSpace(fmt.Sprintf("%v", got))
	want = strings.Trim(want, `"'`)
	switch op {
	case "==", "=", "===":
		return gotStr == want, true
	case "!=", "!==":
		return gotStr != want, true
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (p *Processor) checkPlayerRole(playerID string, r def.PlayerRole) error {
	player, ok := p.store.Player(playerID)
	if !ok {
		return actionErr(CodePlayerNotFound, "no player %q", playerID)
	}
	want := strings.TrimSpace(r.Condition)
	if player.Role != want {
		return actionErr(CodeRequirementNotMet, "requires role %q (player is %q)", want, player.Role)
	}
	return nil
}

func (p *Processor) checkCooldown(playerID string, r def.Cooldown) error {
	window := time.Duration(r.Millis) * time.Millisecond
	if window <= 0 {
		return nil
	}
	p.mu.Lock()
	lastUse, used := p.last[cooldownKey{playerID, r.Target}]
	p.mu.Unlock()
	if !used {
		return nil
	}
	elapsed := p.now().Sub(lastUse)
	if elapsed < window {
		remaining := window - elapsed
		return actionErr(CodeRequirementNotMet, "%s on cooldown: %dms remaining",
			r.Target, remaining.Milliseconds())
	}
	return nil
}

// CooldownRemaining reports how long until the player may run the
// action again, given the action's own cooldown requirements. Zero
// means ready.
func (p *Processor) CooldownRemaining(playerID, actionName string) time.Duration {
	act := p.def.Action(actionName)
	if act == nil {
		return 0
	}
	var remaining time.Duration
	for _, req := range act.Requirements {
		cd, ok := req.(def.Cooldown)
		if !ok {
			continue
		}
		window := time.Duration(cd.Millis) * time.Millisecond
		p.mu.Lock()
		lastUse, used := p.last[cooldownKey{playerID, cd.Target}]
		p.mu.Unlock()
		if !used {
			continue
		}
		if left := window - p.now().Sub(lastUse); left > remaining {
			remaining = left
		}
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Cooldowns reports every action currently on cooldown for the player,
// mapped to the remaining wait. Ready actions are absent.
func (p *Processor) Cooldowns(playerID string) map[string]time.Duration {
	out := make(map[string]time.Duration)
	for i := range p.def.Actions {
		name := p.def.Actions[i].Name
		if left := p.CooldownRemaining(playerID, name); left > 0 {
			out[name] = left
		}
	}
	return out
}

// Available returns the names of actions whose requirements the player
// currently meets.
func (p *Processor) Available(playerID string) []string {
	var names []string
	if _, ok := p.store.Player(playerID); !ok {
		return names
	}
	for i := range p.def.Actions {
		act := &p.def.Actions[i]
		if p.checkRequirements(playerID, act) == nil {
			names = append(names, act.Name)
		}
	}
	return names
}

// ClearCooldowns forgets all cooldown stamps, for resets.
func (p *Processor) ClearCooldowns() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = make(map[cooldownKey]time.Time)
}
