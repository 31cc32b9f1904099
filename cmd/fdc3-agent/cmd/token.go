package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/GoCodeAlone/desktopagent/modules/admin"
	"github.com/spf13/cobra"
)

// NewTokenCommand issues a bearer token for the admin API.
func NewTokenCommand() *cobra.Command {
	var (
		secret  string
		issuer  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Long: `Issue an HS256 token accepted by the admin API. The secret defaults to
FDC3AGENT_ADMIN_JWT_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv(DefaultEnvPrefix + "_ADMIN_JWT_SECRET")
			}
			if secret == "" {
				return ErrNoSecret
			}
			token, err := admin.IssueToken(secret, issuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Token issuer")
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
