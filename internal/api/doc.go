// Package api defines the wire format of the daemon's HTTP API and a small
// client for it.
//
// The daemon converts upload queue entries, workflow summaries and tracker
// snapshots into the DTOs declared here; the CLI decodes the same types
// through Client, so neither side depends on the other's internals.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds in
// UTC.
package api
