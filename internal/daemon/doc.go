// Package daemon coordinates the long-running afterlive process.
//
// It wires the workflow manager, the category catalog watcher and the HTTP
// API into a single lifecycle guarded by a flock so only one daemon runs per
// state directory. The API receives recorder webhooks, exposes the upload
// queue and status, triggers drains and serves prometheus metrics.
//
// Processing logic lives in workflow and the packages it drives; this package
// owns startup, shutdown and the transport edge.
package daemon
