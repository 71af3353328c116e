package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/campaign-service/internal/config"
	"jobmate/campaign-service/internal/logger"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "campaign-service",
		Short:         "Job campaign scheduler and application pipeline engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $CONFIG_PATH or config.yaml)")

	load := func() (*config.Config, logger.Logger, error) {
		path := cfgFile
		if path == "" {
			path = config.Path("config.yaml")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		log, err := logger.New(cfg.Logging)
		if err != nil {
			return nil, nil, fmt.Errorf("logger: %w", err)
		}
		return cfg, log.With(logger.String("service", "campaign-service")), nil
	}

	root.AddCommand(
		newServeCmd(load),
		newScanCmd(load),
		newMigrateCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Printf("campaign-service version %s\n", version)
			},
		},
	)
	return root
}

type loader func() (*config.Config, logger.Logger, error)
