package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	configPath string
	logLevel   string
	envPrefix  string
	noJournal  bool
	noAdmin    bool
}

// NewServeCommand runs the desktop agent until interrupted.
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the desktop agent",
		Long: `Run the desktop agent with the modules configured in --config.
Settings can be overridden with environment variables such as
FDC3AGENT_FDC3_TOPIC_ROOT or FDC3AGENT_ADMIN_ADDRESS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := desktopagent.NewProductionZapLogger(opts.logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			app, err := BuildApplication(opts.configPath, opts.envPrefix, logger, !opts.noJournal, !opts.noAdmin)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runUntilDone(ctx, app, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.envPrefix, "env-prefix", DefaultEnvPrefix, "Prefix of environment overrides")
	cmd.Flags().BoolVar(&opts.noJournal, "no-journal", false, "Do not record events to the journal")
	cmd.Flags().BoolVar(&opts.noAdmin, "no-admin", false, "Do not serve the admin HTTP API")
	return cmd
}

// application is the part of the kernel serve drives.
type application interface {
	Init() error
	Start() error
	Stop() error
}

func runUntilDone(ctx context.Context, app application, logger desktopagent.Logger) error {
	if err := app.Init(); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	logger.Info("Desktop agent running")
	<-ctx.Done()
	logger.Info("Shutting down")
	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	return nil
}
