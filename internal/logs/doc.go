// Package logs reads the daemon's log files for `afterlive logs`.
//
// Tail returns the last lines of a file with bounded memory. Follow streams
// lines appended afterwards and survives the daemon re-pointing the current
// log link on restart.
package logs
