package def

import "encoding/json"

// Effect is a sealed sum type: one atomic state mutation instruction.
// Only the nine variants below implement it. Consumers dispatch with an
// exhaustive type switch; the default branch is unreachable for parsed
// definitions.
type Effect interface {
	// Kind returns the wire name of the effect ("set_var", "modify_var", ...).
	Kind() string
	isEffect()
}

// Op enumerates modify_var arithmetic operations.
type Op string

// Allowed modify_var operations. OpSet is accepted by the parser for
// compatibility with existing definitions but the interpreter treats it as
// an invalid operation (silent no-op), matching the original engine.
const (
	OpSet      Op = "set"
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpMultiply Op = "multiply"
	OpDivide   Op = "divide"
)

// SetVar overwrites a variable with a value (clamped by the store).
type SetVar struct {
	Target string
	Value  any
}

// ModifyVar arithmetically updates a variable (clamped by the store).
type ModifyVar struct {
	Target string
	Op     Op
	Value  any
}

// SetEntity shallow-merges a property object onto an entity.
type SetEntity struct {
	Target string
	Value  map[string]any
}

// TriggerEvent is an observability hook; it never mutates state.
type TriggerEvent struct {
	Target string
}

// ShowMessage is an observability hook; it never mutates state.
type ShowMessage struct {
	Message string
}

// UpdateScore sets (not adds to) a player's score.
type UpdateScore struct {
	PlayerID string
	Value    any
}

// AddLog appends free text to the simulation log.
type AddLog struct {
	Message string
}

// AddEvent appends a structured event stamped with the current time.
type AddEvent struct {
	EventType string
	Message   string
}

// SetStatus drives the simulation state machine.
type SetStatus struct {
	Status string
}

func (SetVar) isEffect()       {}
func (ModifyVar) isEffect()    {}
func (SetEntity) isEffect()    {}
func (TriggerEvent) isEffect() {}
func (ShowMessage) isEffect()  {}
func (UpdateScore) isEffect()  {}
func (AddLog) isEffect()       {}
func (AddEvent) isEffect()     {}
func (SetStatus) isEffect()    {}

// Kind implementations return the JSON discriminator values.
func (SetVar) Kind() string       { return "set_var" }
func (ModifyVar) Kind() string    { return "modify_var" }
func (SetEntity) Kind() string    { return "set_entity" }
func (TriggerEvent) Kind() string { return "trigger_event" }
func (ShowMessage) Kind() string  { return "message" }
func (UpdateScore) Kind() string  { return "update_score" }
func (AddLog) Kind() string       { return "add_log" }
func (AddEvent) Kind() string     { return "add_event" }
func (SetStatus) Kind() string    { return "set_status" }

// effectJSON is the wire shape shared by all effect variants.
type effectJSON struct {
	Type      string `json:"type"`
	Target    string `json:"target,omitempty"`
	Value     any    `json:"value,omitempty"`
	Operation Op     `json:"operation,omitempty"`
	Message   string `json:"message,omitempty"`
	PlayerID  string `json:"playerId,omitempty"`
	EventType string `json:"eventType,omitempty"`
	Status    string `json:"status,omitempty"`
}

// MarshalJSON implementations emit the original flat wire shape with a
// "type" discriminator, so normalized definitions round-trip.

func (e SetVar) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Target: e.Target, Value: e.Value})
}

func (e ModifyVar) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Target: e.Target, Operation: e.Op, Value: e.Value})
}

func (e SetEntity) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Target: e.Target, Value: e.Value})
}

func (e TriggerEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Target: e.Target})
}

func (e ShowMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Message: e.Message})
}

func (e UpdateScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), PlayerID: e.PlayerID, Value: e.Value})
}

func (e AddLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Message: e.Message})
}

func (e AddEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), EventType: e.EventType, Message: e.Message})
}

func (e SetStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{Type: e.Kind(), Status: e.Status})
}
