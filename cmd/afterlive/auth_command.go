package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"afterlive/internal/upload"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorise upload accounts",
	}
	authCmd.AddCommand(newAuthYouTubeCommand(ctx))
	return authCmd
}

func newAuthYouTubeCommand(ctx *commandContext) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "youtube",
		Short: "Run the OAuth consent flow and store the refresh token",
		Long: "Prints the consent URL, then exchanges the authorisation code (from --code or stdin)\n" +
			"for a token written to upload.credential_file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Upload.ClientID == "" || cfg.Upload.ClientSecret == "" {
				return errors.New("upload.client_id and upload.client_secret are required (or set YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET)")
			}
			oc := upload.OAuthConfig(cfg)
			out := cmd.OutOrStdout()

			value := strings.TrimSpace(code)
			if value == "" {
				fmt.Fprintln(out, "Open this URL, approve access, then paste the code below:")
				fmt.Fprintln(out, upload.AuthCodeURL(oc, uuid.NewString()))
				fmt.Fprint(out, "Code: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && strings.TrimSpace(line) == "" {
					return fmt.Errorf("read authorisation code: %w", err)
				}
				value = strings.TrimSpace(line)
			}

			if _, err := upload.ExchangeAndSave(cmd.Context(), oc, value, cfg.Upload.CredentialFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved upload credentials to %s\n", cfg.Upload.CredentialFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorisation code from the consent page")
	return cmd
}
