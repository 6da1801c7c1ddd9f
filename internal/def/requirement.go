package def

import "encoding/json"

// Requirement is a sealed sum type: a precondition an action must satisfy
// before its effects run. Only the four variants below implement it.
type Requirement interface {
	// Kind returns the wire name of the requirement ("var_range", ...).
	Kind() string
	isRequirement()
}

// VarRange requires a variable to satisfy a comparator condition such as
// "> 50" or "<= 100".
type VarRange struct {
	Target    string
	Condition string
}

// EntityState requires an entity property equality/inequality such as
// "status == active".
type EntityState struct {
	Target    string
	Condition string
}

// PlayerRole requires the acting player's role to exactly match Condition.
type PlayerRole struct {
	Target    string
	Condition string
}

// Cooldown requires a minimum elapsed time since the acting player last
// succeeded at the action named by Target.
type Cooldown struct {
	Target    string
	Condition string
	// Millis is the cooldown window in milliseconds.
	Millis float64
}

func (VarRange) isRequirement()    {}
func (EntityState) isRequirement() {}
func (PlayerRole) isRequirement()  {}
func (Cooldown) isRequirement()    {}

func (VarRange) Kind() string    { return "var_range" }
func (EntityState) Kind() string { return "entity_state" }
func (PlayerRole) Kind() string  { return "player_role" }
func (Cooldown) Kind() string    { return "cooldown" }

// requirementJSON is the wire shape shared by all requirement variants.
type requirementJSON struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Condition string `json:"condition"`
	Value     any    `json:"value,omitempty"`
}

func (r VarRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(requirementJSON{Type: r.Kind(), Target: r.Target, Condition: r.Condition})
}

func (r EntityState) MarshalJSON() ([]byte, error) {
	return json.Marshal(requirementJSON{Type: r.Kind(), Target: r.Target, Condition: r.Condition})
}

func (r PlayerRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(requirementJSON{Type: r.Kind(), Target: r.Target, Condition: r.Condition})
}

func (r Cooldown) MarshalJSON() ([]byte, error) {
	return json.Marshal(requirementJSON{Type: r.Kind(), Target: r.Target, Condition: r.Condition, Value: r.Millis})
}
