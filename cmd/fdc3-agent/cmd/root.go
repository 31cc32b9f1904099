// Package cmd holds the fdc3-agent commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command for the fdc3-agent binary.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fdc3-agent",
		Short: "FDC3 desktop agent",
		Long: `fdc3-agent brokers FDC3 intents and context between desktop apps.
Apps talk to the agent through request/response services on a message fabric.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate(PrintVersion() + "\n")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewValidateDirectoryCommand())
	cmd.AddCommand(NewTokenCommand())
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// NewVersionCommand prints the version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// PrintVersion formats the version information.
func PrintVersion() string {
	return fmt.Sprintf("fdc3-agent %s (commit: %s, built on: %s)", Version, Commit, Date)
}
