package def

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse validates and normalizes a raw JSON game definition.
//
// Parse performs no execution: it is pure validation (structure, types,
// closed enums, per-effect required fields) plus normalization (trimmed
// strings, defaulted booleans and layout values). The first problem found
// is returned as a *SchemaError naming the offending JSON path.
func Parse(data []byte) (*Definition, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, schemaErr(ErrCodeBadJSON, "", "invalid JSON: %v", err)
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, schemaErr(ErrCodeWrongType, "", "game definition must be an object")
	}

	d := &Definition{}
	var err error

	if d.Meta, err = parseMeta(root["meta"]); err != nil {
		return nil, err
	}
	if d.Vars, err = parseVars(valueOr(root, "vars", map[string]any{})); err != nil {
		return nil, err
	}
	if d.Entities, err = parseEntities(valueOr(root, "entities", map[string]any{})); err != nil {
		return nil, err
	}
	if d.Actions, err = parseActions(valueOr(root, "actions", []any{})); err != nil {
		return nil, err
	}
	if d.Rules, err = parseRules(valueOr(root, "rules", []any{})); err != nil {
		return nil, err
	}
	if v, present := root["init_random"]; present && v != nil {
		if d.InitRandom, err = parseRandomInit(v); err != nil {
			return nil, err
		}
	}
	if v, present := root["random_events"]; present && v != nil {
		if d.RandomEvents, err = parseRandomEvents(v); err != nil {
			return nil, err
		}
	}
	if d.UI, err = parseUI(valueOr(root, "ui", map[string]any{})); err != nil {
		return nil, err
	}

	return d, nil
}

// valueOr returns obj[key] unless it is absent or null.
func valueOr(obj map[string]any, key string, fallback any) any {
	if v, ok := obj[key]; ok && v != nil {
		return v
	}
	return fallback
}

func asObject(v any, path string) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, schemaErr(ErrCodeWrongType, path, "must be an object")
	}
	return obj, nil
}

func asArray(v any, path string) ([]any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, schemaErr(ErrCodeWrongType, path, "must be an array")
	}
	return arr, nil
}

// reqString returns a trimmed, non-empty string field or a SchemaError.
func reqString(obj map[string]any, key, parent string) (string, error) {
	path := parent + "." + key
	v, ok := obj[key]
	if !ok || v == nil {
		return "", schemaErr(ErrCodeMissingField, path, "must be a non-empty string")
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", schemaErr(ErrCodeWrongType, path, "must be a non-empty string")
	}
	return strings.TrimSpace(s), nil
}

// optString returns a trimmed string field, "" when absent.
func optString(obj map[string]any, key, parent string) (string, error) {
	if v, ok := obj[key]; !ok || v == nil {
		return "", nil
	}
	return reqString(obj, key, parent)
}

func reqNumber(obj map[string]any, key, parent string) (float64, error) {
	path := parent + "." + key
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, schemaErr(ErrCodeMissingField, path, "must be a valid number")
	}
	f, ok := v.(float64)
	if !ok {
		return 0, schemaErr(ErrCodeWrongType, path, "must be a valid number")
	}
	return f, nil
}

// optNumber returns a numeric field, fallback when absent.
func optNumber(obj map[string]any, key, parent string, fallback float64) (float64, error) {
	if v, ok := obj[key]; !ok || v == nil {
		return fallback, nil
	}
	return reqNumber(obj, key, parent)
}

// optBool returns a boolean field, fallback when absent or not a boolean.
func optBool(obj map[string]any, key string, fallback bool) bool {
	if b, ok := obj[key].(bool); ok {
		return b
	}
	return fallback
}

func optStringArray(obj map[string]any, key, parent string) ([]string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	path := parent + "." + key
	arr, err := asArray(v, path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(arr))
	for i, item := range arr {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, schemaErr(ErrCodeWrongType, fmt.Sprintf("%s[%d]", path, i), "must be a non-empty string")
		}
		out[i] = strings.TrimSpace(s)
	}
	return out, nil
}

func parseMeta(v any) (Meta, error) {
	if v == nil {
		return Meta{}, schemaErr(ErrCodeMissingField, "meta", "game definition must have a meta object")
	}
	obj, err := asObject(v, "meta")
	if err != nil {
		return Meta{}, err
	}

	m := Meta{}
	if m.Name, err = reqString(obj, "name", "meta"); err != nil {
		return Meta{}, err
	}
	if m.Version, err = reqString(obj, "version", "meta"); err != nil {
		return Meta{}, err
	}
	if m.Description, err = reqString(obj, "description", "meta"); err != nil {
		return Meta{}, err
	}
	if m.Author, err = reqString(obj, "author", "meta"); err != nil {
		return Meta{}, err
	}
	if _, ok := obj["seed"]; ok && obj["seed"] != nil {
		f, err := reqNumber(obj, "seed", "meta")
		if err != nil {
			return Meta{}, err
		}
		seed := int64(f)
		m.Seed = &seed
	}
	if _, ok := obj["maxPlayers"]; ok && obj["maxPlayers"] != nil {
		f, err := reqNumber(obj, "maxPlayers", "meta")
		if err != nil {
			return Meta{}, err
		}
		m.MaxPlayers = int(f)
	}
	return m, nil
}

func parseVars(v any) (map[string]Variable, error) {
	obj, err := asObject(v, "vars")
	if err != nil {
		return nil, err
	}
	vars := make(map[string]Variable, len(obj))
	for name, raw := range obj {
		path := "var." + name
		vo, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		var vr Variable
		if vr.Value, err = reqNumber(vo, "value", path); err != nil {
			return nil, err
		}
		if vr.Min, err = reqNumber(vo, "min", path); err != nil {
			return nil, err
		}
		if vr.Max, err = reqNumber(vo, "max", path); err != nil {
			return nil, err
		}
		if vr.Unit, err = optString(vo, "unit", path); err != nil {
			return nil, err
		}
		if vr.Label, err = optString(vo, "label", path); err != nil {
			return nil, err
		}
		if vr.Description, err = optString(vo, "description", path); err != nil {
			return nil, err
		}
		vars[name] = vr
	}
	return vars, nil
}

func parseEntities(v any) (map[string]Entity, error) {
	obj, err := asObject(v, "entities")
	if err != nil {
		return nil, err
	}
	entities := make(map[string]Entity, len(obj))
	for name, raw := range obj {
		eo, err := asObject(raw, "entity."+name)
		if err != nil {
			return nil, err
		}
		entities[name] = Entity(eo)
	}
	return entities, nil
}

func parseActions(v any) ([]Action, error) {
	arr, err := asArray(v, "actions")
	if err != nil {
		return nil, err
	}
	actions := make([]Action, 0, len(arr))
	for i, raw := range arr {
		path := fmt.Sprintf("action[%d]", i)
		obj, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		var a Action
		if a.Name, err = reqString(obj, "name", path); err != nil {
			return nil, err
		}
		if a.Description, err = optString(obj, "description", path); err != nil {
			return nil, err
		}
		if params, ok := obj["parameters"]; ok && params != nil {
			if a.Parameters, err = parseParameters(params, path); err != nil {
				return nil, err
			}
		}
		if a.Effects, err = parseEffects(obj["effects"], path); err != nil {
			return nil, err
		}
		if reqs, ok := obj["requirements"]; ok && reqs != nil {
			if a.Requirements, err = parseRequirements(reqs, path); err != nil {
				return nil, err
			}
		}
		if a.Cooldown, err = optNumber(obj, "cooldown", path, 0); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func parseParameters(v any, parent string) ([]Parameter, error) {
	path := parent + ".parameters"
	arr, err := asArray(v, path)
	if err != nil {
		return nil, err
	}
	params := make([]Parameter, 0, len(arr))
	for i, raw := range arr {
		ppath := fmt.Sprintf("%s[%d]", path, i)
		obj, err := asObject(raw, ppath)
		if err != nil {
			return nil, err
		}
		var p Parameter
		if p.Name, err = reqString(obj, "name", ppath); err != nil {
			return nil, err
		}
		typ, err := reqString(obj, "type", ppath)
		if err != nil {
			return nil, err
		}
		switch ParamType(typ) {
		case ParamString, ParamNumber, ParamBoolean, ParamSelect:
			p.Type = ParamType(typ)
		default:
			return nil, schemaErr(ErrCodeBadEnum, ppath+".type",
				"must be one of: string, number, boolean, select")
		}
		p.Required = optBool(obj, "required", false)
		if p.Options, err = optStringArray(obj, "options", ppath); err != nil {
			return nil, err
		}
		p.Default = obj["default"]
		params = append(params, p)
	}
	return params, nil
}

// validStatuses are the values accepted by set_status effects. "ended" is a
// legacy alias the interpreter maps to the terminal finished state.
var validStatuses = []string{"running", "paused", "ended", "waiting", "finished"}

// parseEffects validates an effect list. parent is the JSON path of the
// enclosing action, rule, or random event.
func parseEffects(v any, parent string) ([]Effect, error) {
	path := parent + ".effects"
	if v == nil {
		return nil, schemaErr(ErrCodeMissingField, path, "must be an array")
	}
	arr, err := asArray(v, path)
	if err != nil {
		return nil, err
	}
	effects := make([]Effect, 0, len(arr))
	for i, raw := range arr {
		epath := fmt.Sprintf("%s[%d]", path, i)
		obj, err := asObject(raw, epath)
		if err != nil {
			return nil, err
		}
		eff, err := parseEffect(obj, epath)
		if err != nil {
			return nil, err
		}
		effects = append(effects, eff)
	}
	return effects, nil
}

// parseEffect validates one effect object against the required-field table
// for its type and builds the corresponding sum type variant.
func parseEffect(obj map[string]any, path string) (Effect, error) {
	typ, err := reqString(obj, "type", path)
	if err != nil {
		return nil, err
	}

	target, err := optString(obj, "target", path)
	if err != nil {
		return nil, err
	}
	message, err := optString(obj, "message", path)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "set_var":
		if target == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".target", "is required for set_var effects")
		}
		return SetVar{Target: target, Value: obj["value"]}, nil

	case "modify_var":
		if target == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".target", "is required for modify_var effects")
		}
		opStr, err := optString(obj, "operation", path)
		if err != nil {
			return nil, err
		}
		if opStr == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".operation", "is required for modify_var effects")
		}
		switch Op(opStr) {
		case OpSet, OpAdd, OpSubtract, OpMultiply, OpDivide:
		default:
			return nil, schemaErr(ErrCodeBadEnum, path+".operation",
				"must be one of: set, add, subtract, multiply, divide")
		}
		return ModifyVar{Target: target, Op: Op(opStr), Value: obj["value"]}, nil

	case "set_entity":
		if target == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".target", "is required for set_entity effects")
		}
		props, _ := obj["value"].(map[string]any)
		return SetEntity{Target: target, Value: props}, nil

	case "trigger_event":
		return TriggerEvent{Target: target}, nil

	case "message":
		if message == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".message", "is required for message effects")
		}
		return ShowMessage{Message: message}, nil

	case "update_score":
		playerID, err := optString(obj, "playerId", path)
		if err != nil {
			return nil, err
		}
		if playerID == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".playerId", "is required for update_score effects")
		}
		return UpdateScore{PlayerID: playerID, Value: obj["value"]}, nil

	case "add_log":
		if message == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".message", "is required for add_log effects")
		}
		return AddLog{Message: message}, nil

	case "add_event":
		eventType, err := optString(obj, "eventType", path)
		if err != nil {
			return nil, err
		}
		if eventType == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".eventType", "is required for add_event effects")
		}
		return AddEvent{EventType: eventType, Message: message}, nil

	case "set_status":
		status, err := optString(obj, "status", path)
		if err != nil {
			return nil, err
		}
		if status == "" {
			return nil, schemaErr(ErrCodeMissingField, path+".status", "is required for set_status effects")
		}
		for _, s := range validStatuses {
			if status == s {
				return SetStatus{Status: status}, nil
			}
		}
		return nil, schemaErr(ErrCodeBadEnum, path+".status",
			"must be one of: %s", strings.Join(validStatuses, ", "))

	default:
		return nil, schemaErr(ErrCodeBadEnum, path+".type",
			"must be one of: set_var, modify_var, set_entity, trigger_event, message, update_score, add_log, add_event, set_status")
	}
}

func parseRequirements(v any, parent string) ([]Requirement, error) {
	path := parent + ".requirements"
	arr, err := asArray(v, path)
	if err != nil {
		return nil, err
	}
	reqs := make([]Requirement, 0, len(arr))
	for i, raw := range arr {
		rpath := fmt.Sprintf("%s[%d]", path, i)
		obj, err := asObject(raw, rpath)
		if err != nil {
			return nil, err
		}
		typ, err := reqString(obj, "type", rpath)
		if err != nil {
			return nil, err
		}
		target, err := reqString(obj, "target", rpath)
		if err != nil {
			return nil, err
		}
		condition, err := reqString(obj, "condition", rpath)
		if err != nil {
			return nil, err
		}
		switch typ {
		case "var_range":
			reqs = append(reqs, VarRange{Target: target, Condition: condition})
		case "entity_state":
			reqs = append(reqs, EntityState{Target: target, Condition: condition})
		case "player_role":
			reqs = append(reqs, PlayerRole{Target: target, Condition: condition})
		case "cooldown":
			millis, err := optNumber(obj, "value", rpath, 0)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, Cooldown{Target: target, Condition: condition, Millis: millis})
		default:
			return nil, schemaErr(ErrCodeBadEnum, rpath+".type",
				"must be one of: var_range, entity_state, player_role, cooldown")
		}
	}
	return reqs, nil
}

func parseRules(v any) ([]Rule, error) {
	arr, err := asArray(v, "rules")
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(arr))
	for i, raw := range arr {
		path := fmt.Sprintf("rule[%d]", i)
		obj, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		var r Rule
		trigger, err := reqString(obj, "trigger", path)
		if err != nil {
			return nil, err
		}
		switch Trigger(trigger) {
		case TriggerTick, TriggerAction, TriggerEventKind, TriggerCondition:
			r.Trigger = Trigger(trigger)
		default:
			return nil, schemaErr(ErrCodeBadEnum, path+".trigger",
				"must be one of: tick, action, event, condition")
		}
		if r.Condition, err = optString(obj, "condition", path); err != nil {
			return nil, err
		}
		if r.Effects, err = parseEffects(obj["effects"], path); err != nil {
			return nil, err
		}
		freq, err := optNumber(obj, "frequency", path, 0)
		if err != nil {
			return nil, err
		}
		r.Frequency = int(freq)
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRandomInit(v any) (*RandomInit, error) {
	obj, err := asObject(v, "init_random")
	if err != nil {
		return nil, err
	}
	init := &RandomInit{}
	if raw, ok := obj["vars"]; ok && raw != nil {
		vars, err := asObject(raw, "init_random.vars")
		if err != nil {
			return nil, err
		}
		init.Vars = make(map[string]Range, len(vars))
		for name, rv := range vars {
			path := "init_random.vars." + name
			ro, err := asObject(rv, path)
			if err != nil {
				return nil, err
			}
			var rng Range
			if rng.Min, err = reqNumber(ro, "min", path); err != nil {
				return nil, err
			}
			if rng.Max, err = reqNumber(ro, "max", path); err != nil {
				return nil, err
			}
			init.Vars[name] = rng
		}
	}
	if raw, ok := obj["entities"]; ok && raw != nil {
		entities, err := asObject(raw, "init_random.entities")
		if err != nil {
			return nil, err
		}
		init.Entities = make(map[string]map[string]any, len(entities))
		for name, ev := range entities {
			eo, err := asObject(ev, "init_random.entities."+name)
			if err != nil {
				return nil, err
			}
			init.Entities[name] = eo
		}
	}
	return init, nil
}

func parseRandomEvents(v any) ([]RandomEvent, error) {
	arr, err := asArray(v, "random_events")
	if err != nil {
		return nil, err
	}
	events := make([]RandomEvent, 0, len(arr))
	for i, raw := range arr {
		path := fmt.Sprintf("random_events[%d]", i)
		obj, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		var ev RandomEvent
		if ev.Name, err = reqString(obj, "name", path); err != nil {
			return nil, err
		}
		if ev.Description, err = reqString(obj, "description", path); err != nil {
			return nil, err
		}
		if ev.Probability, err = reqNumber(obj, "probability", path); err != nil {
			return nil, err
		}
		if ev.Conditions, err = optStringArray(obj, "conditions", path); err != nil {
			return nil, err
		}
		if ev.Effects, err = parseEffects(obj["effects"], path); err != nil {
			return nil, err
		}
		if ev.Cooldown, err = optNumber(obj, "cooldown", path, 0); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseUI(v any) (UI, error) {
	obj, err := asObject(v, "ui")
	if err != nil {
		return UI{}, err
	}
	ui := UI{}
	if ui.Panels, err = parsePanels(valueOr(obj, "panels", []any{})); err != nil {
		return UI{}, err
	}
	if ui.Layout, err = parseUILayout(valueOr(obj, "layout", map[string]any{})); err != nil {
		return UI{}, err
	}
	return ui, nil
}

func parseUILayout(v any) (UILayout, error) {
	obj, err := asObject(v, "ui.layout")
	if err != nil {
		return UILayout{}, err
	}
	layout := UILayout{Type: "grid", GridSize: 12, MaxPanels: 8}
	if t, ok := obj["type"]; ok && t != nil {
		s, err := reqString(obj, "type", "ui.layout")
		if err != nil {
			return UILayout{}, err
		}
		switch s {
		case "grid", "vertical", "horizontal":
			layout.Type = s
		default:
			return UILayout{}, schemaErr(ErrCodeBadEnum, "ui.layout.type",
				"must be one of: grid, vertical, horizontal")
		}
	}
	size, err := optNumber(obj, "gridSize", "ui.layout", 12)
	if err != nil {
		return UILayout{}, err
	}
	layout.GridSize = int(size)
	maxPanels, err := optNumber(obj, "maxPanels", "ui.layout", 8)
	if err != nil {
		return UILayout{}, err
	}
	layout.MaxPanels = int(maxPanels)
	return layout, nil
}

func parsePanels(v any) ([]Panel, error) {
	arr, err := asArray(v, "ui.panels")
	if err != nil {
		return nil, err
	}
	panels := make([]Panel, 0, len(arr))
	for i, raw := range arr {
		path := fmt.Sprintf("ui.panels[%d]", i)
		obj, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		var p Panel
		if p.ID, err = reqString(obj, "id", path); err != nil {
			return nil, err
		}
		if p.Title, err = reqString(obj, "title", path); err != nil {
			return nil, err
		}
		if p.Layout, err = parsePanelRect(obj["layout"], path); err != nil {
			return nil, err
		}
		if p.Widgets, err = parseWidgets(valueOr(obj, "widgets", []any{}), path); err != nil {
			return nil, err
		}
		p.Visible = optBool(obj, "visible", true)
		p.Resizable = optBool(obj, "resizable", true)
		p.Draggable = optBool(obj, "draggable", true)
		panels = append(panels, p)
	}
	return panels, nil
}

func parsePanelRect(v any, parent string) (PanelRect, error) {
	path := parent + ".layout"
	if v == nil {
		return PanelRect{}, schemaErr(ErrCodeMissingField, path, "must be an object")
	}
	obj, err := asObject(v, path)
	if err != nil {
		return PanelRect{}, err
	}
	var r PanelRect
	fields := []struct {
		name string
		dst  *float64
	}{
		{"x", &r.X}, {"y", &r.Y}, {"w", &r.W}, {"h", &r.H},
		{"minW", &r.MinW}, {"minH", &r.MinH}, {"maxW", &r.MaxW}, {"maxH", &r.MaxH},
	}
	for _, f := range fields {
		if *f.dst, err = reqNumber(obj, f.name, path); err != nil {
			return PanelRect{}, err
		}
	}
	return r, nil
}

func parseWidgets(v any, parent string) ([]Widget, error) {
	path := parent + ".widgets"
	arr, err := asArray(v, path)
	if err != nil {
		return nil, err
	}
	widgets := make([]Widget, 0, len(arr))
	for i, raw := range arr {
		wpath := fmt.Sprintf("%s[%d]", path, i)
		obj, err := asObject(raw, wpath)
		if err != nil {
			return nil, err
		}
		var w Widget
		if w.ID, err = reqString(obj, "id", wpath); err != nil {
			return nil, err
		}
		if w.Title, err = reqString(obj, "title", wpath); err != nil {
			return nil, err
		}
		typ, err := reqString(obj, "type", wpath)
		if err != nil {
			return nil, err
		}
		switch WidgetType(typ) {
		case WidgetBar, WidgetSchematic, WidgetLog, WidgetChecklist, WidgetTerminal, WidgetGrid:
			w.Type = WidgetType(typ)
		default:
			return nil, schemaErr(ErrCodeBadEnum, wpath+".type",
				"must be one of: bar, schematic, log, checklist, terminal, grid")
		}
		if cfg, ok := obj["config"].(map[string]any); ok {
			w.Config = cfg
		} else {
			w.Config = map[string]any{}
		}
		if bindings, ok := obj["bindings"]; ok && bindings != nil {
			bo, err := asObject(bindings, wpath+".bindings")
			if err != nil {
				return nil, err
			}
			if w.Bindings.Vars, err = optStringArray(bo, "vars", wpath+".bindings"); err != nil {
				return nil, err
			}
			if w.Bindings.Entities, err = optStringArray(bo, "entities", wpath+".bindings"); err != nil {
				return nil, err
			}
			if w.Bindings.Events, err = optStringArray(bo, "events", wpath+".bindings"); err != nil {
				return nil, err
			}
		}
		widgets = append(widgets, w)
	}
	return widgets, nil
}
