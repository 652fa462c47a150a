package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/credentials"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/api/drive/v3"
)

func newAuthCmd(a *app) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Drive access and store the token file",
		Long: `Auth prints the Google consent URL for the OAuth client in
drive.credentials_file, reads the authorization code and stores the
resulting token in drive.token_file. Run it once per machine; later runs
refresh the token on their own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			oauthCfg, err := credentials.LoadConfig(a.cfg.Drive.CredentialsFile, drive.DriveScope)
			if err != nil {
				return err
			}
			tokens := credentials.NewTokenFile(a.cfg.Drive.TokenFile, oauthCfg)

			if code == "" {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Open this URL in a browser and authorize access:")
				fmt.Fprintln(out, tokens.AuthCodeURL(uuid.New().String()))
				fmt.Fprint(out, "Authorization code: ")

				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read authorization code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			if code == "" {
				return fmt.Errorf("authorization code is required")
			}

			if _, err := tokens.Exchange(cmd.Context(), code); err != nil {
				return err
			}
			a.log.Info().Str("path", tokens.Path()).Msg("Token stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code, skips the interactive prompt")
	return cmd
}
