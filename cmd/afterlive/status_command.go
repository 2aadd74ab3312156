package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"afterlive/internal/api"
	"afterlive/internal/config"
	"afterlive/internal/preflight"
	"afterlive/internal/state"
	"afterlive/internal/tracker"
)

type statusReport struct {
	Preflight    []preflightLine        `json:"preflight"`
	Daemon       *api.DaemonStatus      `json:"daemon,omitempty"`
	DaemonError  string                 `json:"daemonError,omitempty"`
	Pending      []api.PendingSession   `json:"pending"`
	Dependencies []api.DependencyStatus `json:"dependencies"`
}

type preflightLine struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show host readiness, daemon state and pending sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report := collectStatus(cmd, cfg, client)
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			writeSections(out, statusSections(report, ctx.configPath), shouldColorize(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, cfg *config.Config, client *api.Client) statusReport {
	report := statusReport{}
	for _, r := range preflight.RunAll(cmd.Context(), cfg) {
		report.Preflight = append(report.Preflight, preflightLine{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}

	daemonStatus, err := client.Status(cmd.Context())
	if err == nil {
		report.Daemon = daemonStatus
		report.Pending = daemonStatus.Pending
		report.Dependencies = daemonStatus.Dependencies
		return report
	}
	if !errors.Is(err, api.ErrDaemonUnavailable) {
		report.DaemonError = err.Error()
	}

	// Without a daemon, read tracked sessions straight from the state directory.
	report.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cmd.Context(), cfg))
	store, err := state.NewFileStore(cfg.Paths.StateDir)
	if err != nil {
		report.Pending = []api.PendingSession{}
		return report
	}
	pending, err := tracker.New(cfg, store, nil).Pending(cmd.Context())
	if err != nil {
		report.Pending = []api.PendingSession{}
		return report
	}
	report.Pending = api.FromRoomStates(pending)
	return report
}

func statusSections(report statusReport, configPath string) []statusSection {
	daemon := statusSection{title: "Daemon"}
	switch d := report.Daemon; {
	case d != nil:
		wf := d.Workflow
		daemon.lines = append(daemon.lines,
			statusLine{"Afterlive", statusOK, fmt.Sprintf("Running (pid %d)", d.PID)},
			statusLine{"Active rooms", statusInfo, formatRooms(wf.ActiveRooms)},
			statusLine{"Running pipelines", statusInfo, fmt.Sprintf("%d", wf.RunningPipelines)},
			statusLine{"Upload queue", statusInfo, fmt.Sprintf("%d item(s), draining: %s", wf.QueueDepth, yesNo(wf.DrainRunning))},
		)
		if wf.NextDrain != "" {
			daemon.lines = append(daemon.lines, statusLine{"Next drain", statusInfo, wf.NextDrain})
		}
		sessions := statusLine{"Sessions", statusOK, fmt.Sprintf("%d processed, %d failed", wf.Processed, wf.Failed)}
		if wf.Failed > 0 {
			sessions.kind = statusWarn
		}
		daemon.lines = append(daemon.lines, sessions)
		if wf.LastError != "" {
			daemon.lines = append(daemon.lines, statusLine{"Last error", statusError, wf.LastError})
		}
	case report.DaemonError != "":
		daemon.lines = append(daemon.lines, statusLine{"Afterlive", statusError, report.DaemonError})
	default:
		daemon.lines = append(daemon.lines, statusLine{"Afterlive", statusWarn, "Not running"})
	}
	if configPath != "" {
		daemon.lines = append(daemon.lines, statusLine{"Config", statusInfo, configPath})
	}

	checks := statusSection{title: "Preflight"}
	for _, r := range report.Preflight {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		checks.lines = append(checks.lines, statusLine{labelCaser.String(r.Name), kind, r.Detail})
	}

	return []statusSection{
		daemon,
		checks,
		{title: "Dependencies", lines: dependencyLines(report.Dependencies)},
		{title: "Pending Sessions", lines: pendingLines(report.Pending)},
	}
}

func formatRooms(rooms []int64) string {
	if len(rooms) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(rooms))
	for _, id := range rooms {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}
