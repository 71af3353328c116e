package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/campaign-service/internal/config"
	"jobmate/campaign-service/internal/db"
	"jobmate/campaign-service/internal/logger"
)

func newMigrateCmd(load loader) *cobra.Command {
	var (
		printOnly   bool
		down        int
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect the PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
				return err
			}
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Storage.Driver != config.StoragePostgres {
				return errors.New("migrate requires storage.driver=postgres")
			}

			switch {
			case showVersion:
				version, dirty, err := db.MigrationVersion(cfg.Database.URL, log)
				if err != nil {
					return err
				}
				log.Info("migration version", logger.Int("version", int(version)), logger.Bool("dirty", dirty))
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return err
			case down > 0:
				return db.MigrateDown(cfg.Database.URL, down, log)
			default:
				return db.Migrate(cfg.Database.URL, log)
			}
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the up migrations instead of applying them")
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations")
	cmd.Flags().BoolVar(&showVersion, "version", false, "print the applied migration version")
	return cmd
}
