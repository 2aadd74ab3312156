// Package preflight provides readiness checks for the directories and
// executables afterlive depends on.
//
// The workflow manager runs CheckFreeSpace before staging a session, and the
// CLI status command and daemon startup use RunAll and CheckSystemDeps to
// report problems early rather than hours into a pipeline.
package preflight
