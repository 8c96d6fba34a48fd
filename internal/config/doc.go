// Package config turns declarative configuration into typed, validated
// values before any planning or engine work happens. It has two surfaces:
//
//   - options.go: ParseModelArgs, the flat key=value model-args parser with
//     the documented option table, defaults, and per-field validation.
//   - loader.go: daemon-level file configuration (.yaml/.json/.toml).
//   - errors.go: configuration error types and predicates
//     (IsUnrecognizedOption, IsInvalidOptionValue, IsOutOfRangeOption).
//
// Everything here is pure: no environment reads, no side effects, safe to
// call concurrently.
package config
