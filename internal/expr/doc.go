// Package expr evaluates the numeric condition language used by rules,
// random events, and action requirements.
//
// Evaluation is a two-phase pipeline: identifiers are substituted with
// numeric values from a Source, then the substituted text is checked
// against a strict character whitelist and parsed by a small recursive
// descent parser. Nothing is ever handed to a general-purpose
// interpreter, so condition strings from untrusted definitions cannot
// execute code: any identifier the Source does not resolve, and any
// character outside the arithmetic/comparison set, fails the expression.
package expr
