package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartprocure/backend/config"
	httpDelivery "github.com/smartprocure/backend/internal/delivery/http"
	"github.com/smartprocure/backend/internal/logger"
)

// rootOptions holds the flags shared by every command
type rootOptions struct {
	configFile string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "smartprocure",
		Short:         "Supplier discovery and outreach for procurement requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default is ./config.yaml, ./config/config.yaml or /etc/smartprocure/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newDiscoverCommand(opts),
		newOutreachCommand(opts),
		newServeCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "smartprocure version %s\n", httpDelivery.Version)
			},
		},
	)
	return root
}

// load reads the configuration and builds the logger for a command
func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
