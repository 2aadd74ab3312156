package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"afterlive/internal/api"
	"afterlive/internal/uploadqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the upload queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStuckCommand(ctx))
	queueCmd.AddCommand(newQueueDrainCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(store *uploadqueue.Store) error {
				entries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				return printEntries(cmd, entries, jsonOutput, "Upload queue is empty")
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueStuckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var minAttempts int

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List uploads that keep failing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			threshold := minAttempts
			if threshold <= 0 {
				threshold = cfg.Notifications.StuckAfterAttempts
			}
			if threshold <= 0 {
				threshold = 1
			}
			return ctx.withQueue(func(store *uploadqueue.Store) error {
				entries, err := store.Stuck(cmd.Context(), threshold)
				if err != nil {
					return err
				}
				empty := fmt.Sprintf("No uploads with %d or more failed attempts", threshold)
				return printEntries(cmd, entries, jsonOutput, empty)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&minAttempts, "min-attempts", 0, "Minimum failed attempts (default notifications.stuck_after_attempts)")
	return cmd
}

func newQueueDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Ask the running daemon to upload everything queued now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch err := client.Drain(cmd.Context()); {
			case err == nil:
				fmt.Fprintln(out, "Upload drain started")
				return nil
			case errors.Is(err, api.ErrDrainInProgress):
				fmt.Fprintln(out, "An upload drain is already running")
				return nil
			case errors.Is(err, api.ErrDaemonUnavailable):
				return fmt.Errorf("%w; start it with `afterlive daemon`", err)
			default:
				return err
			}
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok, err := confirm(cmd, "Remove all queued uploads? Recordings stay on disk. [y/N] ")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}
			return ctx.withQueue(func(store *uploadqueue.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queued upload(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

var queueColumns = []column{
	{title: "ID", numeric: true},
	{title: "Room", numeric: true},
	{title: "Anchor"},
	{title: "Title"},
	{title: "Files", numeric: true},
	{title: "Size", numeric: true},
	{title: "Attempts", numeric: true},
	{title: "Queued"},
	{title: "Last Error"},
}

func printEntries(cmd *cobra.Command, entries []uploadqueue.Entry, jsonOutput bool, empty string) error {
	if jsonOutput {
		return writeJSON(cmd, api.QueueListResponse{Items: api.FromEntries(entries)})
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, empty)
		return nil
	}
	fmt.Fprint(out, renderTable(queueColumns, queueRows(entries, time.Now())))
	fmt.Fprintln(out)
	return nil
}

func queueRows(entries []uploadqueue.Entry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		item := entry.Item
		queued := "-"
		if !entry.FirstQueuedAt.IsZero() {
			queued = humanize.RelTime(entry.FirstQueuedAt, now, "ago", "from now")
		}
		lastError := entry.LastError
		if lastError == "" {
			lastError = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			strconv.FormatInt(item.Session.RoomID, 10),
			item.Session.AnchorName,
			item.Session.LiveTitle,
			strconv.Itoa(len(item.VideoPaths)),
			totalSize(item.VideoPaths),
			strconv.Itoa(entry.Attempts),
			queued,
			lastError,
		})
	}
	return rows
}

// totalSize sums the files still on disk. Missing files are skipped and
// reported as "-" when none remain.
func totalSize(paths []string) string {
	var total uint64
	found := false
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		found = true
		total += uint64(info.Size())
	}
	if !found {
		return "-"
	}
	return humanize.Bytes(total)
}
