package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "afterlive",
		Short:         "Livestream recording post-processor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddGroup(
		&cobra.Group{ID: "run", Title: "Daemon:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
	addGrouped(rootCmd, "run",
		newDaemonCommand(ctx),
		newStatusCommand(ctx),
		newQueueCommand(ctx),
		newLogsCommand(ctx),
	)
	addGrouped(rootCmd, "setup",
		newConfigCommand(ctx),
		newAuthCommand(ctx),
		newTestNotifyCommand(ctx),
	)

	return rootCmd
}

func addGrouped(parent *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.GroupID = group
		parent.AddCommand(cmd)
	}
}
