// Package effect applies parsed effects to a state store: the one
// place where definition instructions become state mutations.
package effect

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/state"
)

// Effect error codes (F300-F399).
const (
	// ErrCodeUnknownEffect indicates an effect variant the interpreter
	// does not know. Unreachable for parsed definitions.
	ErrCodeUnknownEffect = "F300"

	// ErrCodeBadValue indicates an effect value that could not be
	// coerced to the number the effect needs.
	ErrCodeBadValue = "F301"

	// ErrCodeBadStatus indicates a set_status value outside the
	// lifecycle enum. Unreachable for parsed definitions.
	ErrCodeBadStatus = "F302"
)

// Error is a failed effect application.
type Error struct {
	Code    string
	Effect  string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s effect: %s", e.Code, e.Effect, e.Message)
}

// IsEffectError reports whether err is (or wraps) an effect Error.
func IsEffectError(err error) bool {
	var ee *Error
	return errors.As(err, &ee)
}

func effectErr(code, effect, format string, args ...any) *Error {
	return &Error{Code: code, Effect: effect, Message: fmt.Sprintf(format, args...)}
}

// Sink receives the observability effects that do not mutate state.
type Sink interface {
	// EventTriggered is called for trigger_event effects.
	EventTriggered(name string)
	// Message is called for message effects.
	Message(text string)
}

// NopSink discards observability effects.
type NopSink struct{}

func (NopSink) EventTriggered(string) {}
func (NopSink) Message(string)        {}

// LogSink reports observability effects through a structured logger.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) EventTriggered(name string) {
	s.Log.Info("event triggered", "event", name)
}

func (s LogSink) Message(text string) {
	s.Log.Info("message", "text", text)
}

// Interpreter applies effects to one store. It holds no state of its
// own; two interpreters over the same store are interchangeable.
type Interpreter struct {
	store *state.Store
	sink  Sink
}

// New builds an Interpreter. A nil sink logs through slog.Default.
func New(store *state.Store, sink Sink) *Interpreter {
	if sink == nil {
		sink = LogSink{Log: slog.Default()}
	}
	return &Interpreter{store: store, sink: sink}
}

// Apply executes one effect. Mutations aimed at undeclared variables
// are silent no-ops; only value coercion failures and unknown variants
// are errors.
func (in *Interpreter) Apply(e def.Effect) error {
	switch eff := e.(type) {
	case def.SetVar:
		v, err := in.number(eff.Value, e.Kind())
		if err != nil {
			return err
		}
		in.store.SetVariable(eff.Target, v)
		return nil

	case def.ModifyVar:
		v, err := in.number(eff.Value, e.Kind())
		if err != nil {
			return err
		}
		in.store.ModifyVariable(eff.Target, eff.Op, v)
		return nil

	case def.SetEntity:
		if len(eff.Value) > 0 {
			in.store.SetEntityProperties(eff.Target, eff.Value)
		}
		return nil

	case def.TriggerEvent:
		in.sink.EventTriggered(eff.Target)
		return nil

	case def.ShowMessage:
		in.sink.Message(eff.Message)
		return nil

	case def.UpdateScore:
		v, err := in.number(eff.Value, e.Kind())
		if err != nil {
			return err
		}
		if math.IsNaN(v) {
			return effectErr(ErrCodeBadValue, e.Kind(), "score value is not a number")
		}
		in.store.SetScore(eff.PlayerID, v)
		return nil

	case def.AddLog:
		in.store.AddLog(eff.Message)
		return nil

	case def.AddEvent:
		in.store.AddEvent(eff.EventType, eff.Message)
		return nil

	case def.SetStatus:
		if !in.store.SetStatus(eff.Status) {
			return effectErr(ErrCodeBadStatus, e.Kind(), "unknown status %q", eff.Status)
		}
		return nil

	default:
		return effectErr(ErrCodeUnknownEffect, e.Kind(), "unknown effect variant")
	}
}

// ApplyAll executes effects in order, stopping at the first failure.
// Effects already applied stay applied; there is no rollback.
func (in *Interpreter) ApplyAll(effects []def.Effect) (int, error) {
	for i, e := range effects {
		if err := in.Apply(e); err != nil {
			return i, err
		}
	}
	return len(effects), nil
}

// number coerces an effect value: JSON numbers pass through, booleans
// map to 1/0, and strings evaluate as arithmetic expressions over the
// current state ("power / 2"). Anything else is an error; a nil value
// becomes NaN so set_var falls back to the declared initial via
// clamping.
func (in *Interpreter) number(v any, kind string) (float64, error) {
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := in.store.EvaluateNumber(t)
		if err != nil {
			return 0, effectErr(ErrCodeBadValue, kind, "value expression %q: %v", t, err)
		}
		return n, nil
	}
	return 0, effectErr(ErrCodeBadValue, kind, "value %v is not numeric", v)
}
