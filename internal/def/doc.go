// Package def holds the typed, validated form of a game definition.
//
// A definition is authored as JSON (or CUE, see cue.go) and parsed into an
// immutable Definition value. Parsing is pure validation plus normalization:
// strings are trimmed, booleans and layout values are defaulted, and every
// structural problem is reported as a SchemaError naming the offending JSON
// path (for example "action[2].effects[0].target").
//
// Effects and requirements are closed sum types: sealed interfaces whose
// concrete variants are the only implementations. Consumers dispatch with an
// exhaustive type switch, so adding a new effect kind is a compile-time
// visible change rather than a new string case.
//
// A Definition is never mutated after Parse returns. The live, mutable side
// of a simulation lives in package state.
package def
