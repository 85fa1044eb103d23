// Package internal holds small helpers shared by the engine: random code and
// identifier generation and digit-string utilities. Nothing here is part of
// the public API.
package internal
