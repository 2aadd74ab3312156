// Package services defines shared utilities consumed by the workflow, pipeline
// and upload components.
//
// Key responsibilities:
//   - Context helpers that stamp room ids, session ids, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures keep both a
//     classification and their cause.
//   - Typed session errors (unknown session, working directory conflict,
//     missing channel, missing videos, subtitle warnings) that callers match
//     with errors.As.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the daemon.
package services
