package def

// Definition is the immutable, validated description of a simulation:
// variables, entities, player actions, tick rules, random events, and the
// UI layout metadata the engine itself never interprets.
type Definition struct {
	Meta         Meta                `json:"meta"`
	Vars         map[string]Variable `json:"vars"`
	Entities     map[string]Entity   `json:"entities"`
	Actions      []Action            `json:"actions"`
	Rules        []Rule              `json:"rules"`
	InitRandom   *RandomInit         `json:"init_random,omitempty"`
	RandomEvents []RandomEvent       `json:"random_events,omitempty"`
	UI           UI                  `json:"ui"`
}

// Meta identifies a definition.
type Meta struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Seed        *int64 `json:"seed,omitempty"`
	MaxPlayers  int    `json:"maxPlayers,omitempty"`
}

// Variable declares a numeric quantity with an initial value and bounds.
//
// Bounds are enforced on every write, not at parse time: a definition whose
// initial value lies outside [Min, Max] is accepted and corrected on the
// first write (lazy clamping, matching the original engine).
type Variable struct {
	Value       float64 `json:"value"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Unit        string  `json:"unit,omitempty"`
	Label       string  `json:"label,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Entity is an untyped property bag used as a loosely-typed simulation
// object (a reactor, a door, a market).
type Entity map[string]any

// Action is a player-invocable, validated, cooldown-able group of effects.
type Action struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Parameters   []Parameter   `json:"parameters,omitempty"`
	Effects      []Effect      `json:"effects"`
	Requirements []Requirement `json:"requirements,omitempty"`
	// Cooldown is an informational per-action window in milliseconds.
	// Enforcement happens through a cooldown requirement; this field is
	// carried for UI display.
	Cooldown float64 `json:"cooldown,omitempty"`
}

// ParamType enumerates the declared action parameter types.
type ParamType string

// Allowed parameter types.
const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamSelect  ParamType = "select"
)

// Parameter declares a typed action parameter.
type Parameter struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Default  any       `json:"default,omitempty"`
}

// Trigger enumerates rule trigger kinds.
type Trigger string

// Allowed rule triggers. Only TriggerTick is driven by the scheduler; the
// other kinds are carried for definitions that declare them.
const (
	TriggerTick      Trigger = "tick"
	TriggerAction    Trigger = "action"
	TriggerEventKind Trigger = "event"
	TriggerCondition Trigger = "condition"
)

// Rule is a guarded, possibly frequency-limited group of effects evaluated
// by the tick loop.
type Rule struct {
	Trigger   Trigger  `json:"trigger"`
	Condition string   `json:"condition,omitempty"`
	Effects   []Effect `json:"effects"`
	// Frequency limits a tick rule to every N ticks (0 means every tick).
	Frequency int `json:"frequency,omitempty"`
}

// RandomInit randomizes parts of the initial state when a simulation is
// created or reset.
type RandomInit struct {
	Vars     map[string]Range          `json:"vars,omitempty"`
	Entities map[string]map[string]any `json:"entities,omitempty"`
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RandomEvent is a probabilistic, optionally condition-gated group of
// effects evaluated on every tick.
type RandomEvent struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Probability float64 `json:"probability"`
	// Conditions are AND-combined; all must hold for the event to fire.
	Conditions []string `json:"conditions,omitempty"`
	Effects    []Effect `json:"effects"`
	Cooldown   float64  `json:"cooldown,omitempty"`
}

// UI is layout metadata passed through to clients. The engine validates its
// shape so definitions round-trip, but never interprets it.
type UI struct {
	Panels []Panel  `json:"panels"`
	Layout UILayout `json:"layout"`
}

// UILayout describes the top-level panel arrangement.
type UILayout struct {
	Type      string `json:"type"`
	GridSize  int    `json:"gridSize"`
	MaxPanels int    `json:"maxPanels"`
}

// Panel is one draggable/resizable panel of widgets.
type Panel struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Layout    PanelRect `json:"layout"`
	Widgets   []Widget  `json:"widgets"`
	Visible   bool      `json:"visible"`
	Resizable bool      `json:"resizable"`
	Draggable bool      `json:"draggable"`
}

// PanelRect is a panel's grid placement.
type PanelRect struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	MinW float64 `json:"minW"`
	MinH float64 `json:"minH"`
	MaxW float64 `json:"maxW"`
	MaxH float64 `json:"maxH"`
}

// WidgetType enumerates the supported widget kinds.
type WidgetType string

// Allowed widget types.
const (
	WidgetBar       WidgetType = "bar"
	WidgetSchematic WidgetType = "schematic"
	WidgetLog       WidgetType = "log"
	WidgetChecklist WidgetType = "checklist"
	WidgetTerminal  WidgetType = "terminal"
	WidgetGrid      WidgetType = "grid"
)

// Widget is one display element inside a panel.
type Widget struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Type     WidgetType     `json:"type"`
	Config   map[string]any `json:"config"`
	Bindings Bindings       `json:"bindings"`
}

// Bindings names the state a widget observes.
type Bindings struct {
	Vars     []string `json:"vars,omitempty"`
	Entities []string `json:"entities,omitempty"`
	Events   []string `json:"events,omitempty"`
}

// Action lookup by name. Returns nil if no action with that name exists.
func (d *Definition) Action(name string) *Action {
	for i := range d.Actions {
		if d.Actions[i].Name == name {
			return &d.Actions[i]
		}
	}
	return nil
}

// TickRules returns the rules with the tick trigger, in declaration order.
func (d *Definition) TickRules() []Rule {
	var rules []Rule
	for _, r := range d.Rules {
		if r.Trigger == TriggerTick {
			rules = append(rules, r)
		}
	}
	return rules
}
