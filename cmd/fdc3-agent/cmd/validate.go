package cmd

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/desktopagent/modules/appdirectory"
	"github.com/spf13/cobra"
)

// NewValidateDirectoryCommand checks an app directory catalog against the
// app record schema.
func NewValidateDirectoryCommand() *cobra.Command {
	var (
		format  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "validate-directory <path-or-url>",
		Short: "Validate an app directory catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := appdirectory.NewDirectory(&appdirectory.Config{
				Source:      args[0],
				Format:      format,
				HTTPTimeout: timeout,
			}, nil, nil)
			if err != nil {
				return err
			}
			if err := dir.Load(cmd.Context()); err != nil {
				return err
			}
			apps, err := dir.GetApps(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, app := range apps {
				fmt.Fprintf(out, "  %s (%s)\n", app.AppID, app.Type)
			}
			fmt.Fprintf(out, "%s: %d apps OK\n", dir.Source(), len(apps))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", appdirectory.FormatAuto, "Catalog format (auto, json, yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for HTTP catalogs")
	return cmd
}
