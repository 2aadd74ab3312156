// Package state persists small JSON documents that must survive daemon
// restarts: session start times and the pending recording stems per room.
//
// Each namespace is one JSON object keyed by string. FileStore keeps a
// namespace in <dir>/<namespace>.json and serialises every read-modify-write
// with a process mutex plus an advisory flock, so two daemons sharing a state
// directory cannot interleave updates. MemoryStore backs tests.
package state
