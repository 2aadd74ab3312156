// Package logging builds the slog loggers used by afterlive.
//
// It provides the console and JSON handlers, level parsing, log file routing
// and retention, plus context helpers that tag lines with the room, session,
// stage and request identifiers carried on a context.Context. NewNop returns a
// logger that discards everything, for tests and optional wiring.
package logging
